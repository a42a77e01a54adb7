// Package circuit reduces OpenQASM source to a circuit descriptor: how many
// qubits it declares, which gates it applies, which qubit pairs interact and
// how deep the gate schedule is.
package circuit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/rs/zerolog"
)

// ErrParse is returned for source that cannot be reduced to a descriptor
var ErrParse = errors.New("circuit parse error")

// Statements that never contribute a required gate
var nonGateKeywords = map[string]bool{
	"measure": true,
	"barrier": true,
	"reset":   true,
	"delay":   true,
}

// Classical declarations and directives skipped entirely
var skippedKeywords = map[string]bool{
	"openqasm": true,
	"include":  true,
	"creg":     true,
	"bit":      true,
	"opaque":   true,
	"input":    true,
	"output":   true,
	"const":    true,
	"int":      true,
	"uint":     true,
	"float":    true,
	"angle":    true,
	"bool":     true,
	"complex":  true,
	"defcal":   true,
	"cal":      true,
	"def":      true,
}

// Control flow cannot be reduced without evaluating the program
var unsupportedKeywords = map[string]bool{
	"for":    true,
	"while":  true,
	"switch": true,
	"box":    true,
}

// register is a named, contiguous block of the flattened qubit space
type register struct {
	offset int
	size   int
}

// span is a resolved operand: one qubit, or a whole register to broadcast over
type span struct {
	offset int
	size   int
}

// at returns the qubit used in the k-th application of a broadcast
func (s span) at(k int) int {
	if s.size == 1 {
		return s.offset
	}
	return s.offset + k
}

// statement is one `;`-terminated or brace-delimited chunk of source
type statement struct {
	text string
	line int
}

// Parser reads the OpenQASM 2.0 / 3.0 subset that determines resource needs.
type Parser struct {
	log zerolog.Logger
}

// NewParser creates a parser
func NewParser(log zerolog.Logger) *Parser {
	return &Parser{log: log.With().Str("component", "qasm_parser").Logger()}
}

// Parse returns the circuit descriptor for the given OpenQASM source
func (p *Parser) Parse(src string) (*domain.Circuit, error) {
	statements, err := splitStatements(stripComments(src))
	if err != nil {
		return nil, err
	}

	st := &parseState{
		registers: make(map[string]register),
		gates:     make(map[string]struct{}),
	}
	for _, s := range statements {
		if err := st.apply(s.text); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrParse, s.line, err)
		}
	}
	if st.qubits == 0 {
		return nil, fmt.Errorf("%w: no qubits declared", ErrParse)
	}

	gates := make([]string, 0, len(st.gates))
	for g := range st.gates {
		gates = append(gates, g)
	}
	circuit := domain.NewCircuit(st.qubits, gates, st.pairs)
	circuit.Depth = st.depth

	p.log.Debug().
		Int("qubits", circuit.QubitCount).
		Int("gates", len(circuit.RequiredGates)).
		Int("pairs", len(circuit.InteractionPairs)).
		Int("depth", circuit.Depth).
		Msg("Parsed circuit")

	return circuit, nil
}

// stripComments removes // line comments and /* */ block comments, keeping
// newlines so line numbers stay correct.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); i++ {
		switch {
		case strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		case strings.HasPrefix(src[i:], "/*"):
			i += 2
			for i < len(src) && !strings.HasPrefix(src[i:], "*/") {
				if src[i] == '\n' {
					b.WriteByte('\n')
				}
				i++
			}
			i++ // skip the '/' of "*/"
		default:
			b.WriteByte(src[i])
		}
	}
	return b.String()
}

// splitStatements cuts the source at top-level semicolons. A brace block
// (gate body) ends its statement at the closing brace.
func splitStatements(src string) ([]statement, error) {
	var (
		out   []statement
		cur   strings.Builder
		depth int
		line  = 1
		start = 0
	)
	flush := func() {
		text := strings.Join(strings.Fields(cur.String()), " ")
		if text != "" {
			out = append(out, statement{text: text, line: start})
		}
		cur.Reset()
		start = 0
	}

	for _, r := range src {
		if r == '\n' {
			line++
		}
		if start == 0 && !unicode.IsSpace(r) {
			start = line
		}
		switch r {
		case '{':
			depth++
			cur.WriteRune(r)
		case '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: line %d: unbalanced '}'", ErrParse, line)
			}
			cur.WriteRune(r)
			if depth == 0 {
				flush()
			}
		case ';':
			if depth == 0 {
				flush()
			} else {
				cur.WriteRune(r)
			}
		default:
			cur.WriteRune(r)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unterminated block", ErrParse)
	}
	if strings.TrimSpace(cur.String()) != "" {
		return nil, fmt.Errorf("%w: line %d: missing ';'", ErrParse, start)
	}
	return out, nil
}

type parseState struct {
	registers map[string]register
	qubits    int
	gates     map[string]struct{}
	pairs     []domain.Pair
	layers    []int // per qubit, the layer of its last gate
	depth     int
}

func (st *parseState) apply(text string) error {
	keyword := leadingWord(text)

	switch {
	case keyword == "gate":
		// Definitions only introduce a name; usage is what counts.
		return nil
	case keyword == "qreg":
		return st.declareQreg(strings.TrimSpace(text[len(keyword):]))
	case keyword == "qubit":
		return st.declareQubit(strings.TrimSpace(text[len(keyword):]))
	case keyword == "if":
		body, err := stripCondition(text)
		if err != nil {
			return err
		}
		return st.apply(body)
	case skippedKeywords[keyword]:
		return nil
	case unsupportedKeywords[keyword]:
		return fmt.Errorf("%q statements are not supported", keyword)
	case nonGateKeywords[keyword]:
		return nil
	case strings.Contains(text, "=") || strings.Contains(text, "->"):
		// classical assignment, including "c = measure q"
		return nil
	case strings.Contains(text, "@"):
		return fmt.Errorf("gate modifiers are not supported: %q", text)
	}

	return st.applyGate(text)
}

func (st *parseState) declareQreg(rest string) error {
	name, size, err := parseIndexed(rest)
	if err != nil {
		return fmt.Errorf("malformed qreg declaration: %v", err)
	}
	if size < 0 {
		return fmt.Errorf("qreg %q needs a size", name)
	}
	return st.addRegister(name, size)
}

// declareQubit handles "qubit[n] name" and "qubit name"
func (st *parseState) declareQubit(rest string) error {
	size := 1
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return fmt.Errorf("malformed qubit declaration")
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest[1:end]))
		if err != nil {
			return fmt.Errorf("malformed qubit size %q", rest[1:end])
		}
		size = n
		rest = strings.TrimSpace(rest[end+1:])
	}
	if !isIdentifier(rest) {
		return fmt.Errorf("malformed qubit register name %q", rest)
	}
	return st.addRegister(rest, size)
}

func (st *parseState) addRegister(name string, size int) error {
	if size <= 0 {
		return fmt.Errorf("register %q must have a positive size, got %d", name, size)
	}
	if _, dup := st.registers[name]; dup {
		return fmt.Errorf("register %q declared twice", name)
	}
	if size > domain.MaxQubitCount-st.qubits {
		return fmt.Errorf("register %q of size %d takes the circuit past %d qubits", name, size, domain.MaxQubitCount)
	}
	st.registers[name] = register{offset: st.qubits, size: size}
	st.qubits += size
	st.layers = append(st.layers, make([]int, size)...)
	return nil
}

// applyGate handles "name[(params)] operand, operand, ..."
func (st *parseState) applyGate(text string) error {
	name := leadingWord(text)
	if name == "" || !isIdentifier(name) {
		return fmt.Errorf("malformed statement %q", text)
	}
	rest := strings.TrimSpace(text[len(name):])

	if strings.HasPrefix(rest, "(") {
		end := matchingParen(rest)
		if end < 0 {
			return fmt.Errorf("unterminated parameter list in %q", text)
		}
		rest = strings.TrimSpace(rest[end+1:])
	}
	if rest == "" {
		if strings.EqualFold(name, "gphase") {
			return nil
		}
		return fmt.Errorf("gate %q has no operands", name)
	}

	operands := strings.Split(rest, ",")
	spans := make([]span, len(operands))
	width := 1
	for i, op := range operands {
		sp, err := st.resolve(strings.TrimSpace(op))
		if err != nil {
			return err
		}
		spans[i] = sp
		if sp.size > 1 {
			if width > 1 && sp.size != width {
				return fmt.Errorf("broadcast registers of different sizes in %q", text)
			}
			width = sp.size
		}
	}

	st.gates[domain.NormalizeGate(name)] = struct{}{}

	// Whole-register operands broadcast; single qubits repeat.
	app := make([]int, len(spans))
	for k := 0; k < width; k++ {
		for i, sp := range spans {
			app[i] = sp.at(k)
		}
		if err := st.addInteractions(app); err != nil {
			return fmt.Errorf("%v in %q", err, text)
		}
		st.schedule(app)
	}
	return nil
}

// schedule places one gate application on the layer after the latest layer
// of any of its qubits.
func (st *parseState) schedule(qubits []int) {
	layer := 0
	for _, q := range qubits {
		if st.layers[q] > layer {
			layer = st.layers[q]
		}
	}
	layer++
	for _, q := range qubits {
		st.layers[q] = layer
	}
	if layer > st.depth {
		st.depth = layer
	}
}

func (st *parseState) addInteractions(qubits []int) error {
	for i := 0; i < len(qubits); i++ {
		for j := i + 1; j < len(qubits); j++ {
			if qubits[i] == qubits[j] {
				return fmt.Errorf("qubit %d used twice", qubits[i])
			}
			st.pairs = append(st.pairs, domain.NewPair(qubits[i], qubits[j]))
		}
	}
	return nil
}

// resolve maps "reg[i]" to one flattened index and "reg" to the whole register
func (st *parseState) resolve(operand string) (span, error) {
	name, index, err := parseIndexed(operand)
	if err != nil {
		return span{}, fmt.Errorf("malformed operand %q: %v", operand, err)
	}
	reg, ok := st.registers[name]
	if !ok {
		return span{}, fmt.Errorf("unknown register %q", name)
	}
	if index < 0 {
		return span{offset: reg.offset, size: reg.size}, nil
	}
	if index >= reg.size {
		return span{}, fmt.Errorf("index %d out of range for register %q of size %d", index, name, reg.size)
	}
	return span{offset: reg.offset + index, size: 1}, nil
}

// parseIndexed splits "name[n]" into name and n; a bare "name" gives n = -1
func parseIndexed(s string) (string, int, error) {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		if !isIdentifier(s) {
			return "", 0, fmt.Errorf("invalid identifier %q", s)
		}
		return s, -1, nil
	}
	if !strings.HasSuffix(s, "]") {
		return "", 0, fmt.Errorf("missing ']'")
	}
	name := strings.TrimSpace(s[:open])
	if !isIdentifier(name) {
		return "", 0, fmt.Errorf("invalid identifier %q", name)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s[open+1 : len(s)-1]))
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("invalid index %q", s[open+1:len(s)-1])
	}
	return name, n, nil
}

// stripCondition turns "if (c==1) x q[0]" into "x q[0]"
func stripCondition(text string) (string, error) {
	rest := strings.TrimSpace(text[len("if"):])
	if !strings.HasPrefix(rest, "(") {
		return "", fmt.Errorf("malformed if statement")
	}
	end := matchingParen(rest)
	if end < 0 {
		return "", fmt.Errorf("unterminated if condition")
	}
	body := strings.TrimSpace(rest[end+1:])
	body = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(body, "{"), "}"))
	body = strings.TrimSpace(strings.TrimSuffix(body, ";"))
	if strings.Contains(body, ";") {
		return "", fmt.Errorf("conditional blocks with several statements are not supported")
	}
	if body == "" {
		return "", fmt.Errorf("empty if body")
	}
	return body, nil
}

// matchingParen returns the index of the ')' closing s[0], or -1
func matchingParen(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// leadingWord returns the identifier at the start of text, lower-cased
func leadingWord(text string) string {
	end := strings.IndexFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	if end < 0 {
		end = len(text)
	}
	return strings.ToLower(text[:end])
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
