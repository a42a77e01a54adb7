/**
 * Package di provides dependency injection type definitions.
 *
 * Container holds every long-lived component of the binding service. It is
 * created by Wire() and handed to the server and main for startup and shutdown.
 */
package di

import (
	"github.com/aristath/qpubinder/internal/database"
	"github.com/aristath/qpubinder/internal/domain"
	"github.com/aristath/qpubinder/internal/metrics"
	"github.com/aristath/qpubinder/internal/modules/batch"
	"github.com/aristath/qpubinder/internal/modules/binding"
	bindinghandlers "github.com/aristath/qpubinder/internal/modules/binding/handlers"
	"github.com/aristath/qpubinder/internal/modules/catalog"
	cataloghandlers "github.com/aristath/qpubinder/internal/modules/catalog/handlers"
	"github.com/aristath/qpubinder/internal/modules/circuit"
	"github.com/aristath/qpubinder/internal/reliability"
	"github.com/aristath/qpubinder/internal/scheduler"
)

// Container holds all dependencies for the application
type Container struct {
	// Databases (nil unless the sqlite catalog source is selected)
	CatalogDB *database.DB

	// Catalog
	Repository *catalog.Repository
	Source     domain.QPUSource
	Store      *catalog.Store
	Refresher  *catalog.Refresher

	// Binding
	Engine *binding.Engine
	Parser *circuit.Cache
	Pool   *batch.WorkerPool

	// Observability
	Metrics *metrics.Collector

	// Background jobs
	Scheduler *scheduler.Scheduler
	Backup    *reliability.CatalogBackupService // nil unless CATALOG_BACKUP_BUCKET is set

	// HTTP handlers
	BindingHandler *bindinghandlers.Handler
	CatalogHandler *cataloghandlers.Handler
}

// Databases returns the open databases
func (c *Container) Databases() []*database.DB {
	if c.CatalogDB == nil {
		return nil
	}
	return []*database.DB{c.CatalogDB}
}

// Close releases the databases
func (c *Container) Close() error {
	if c.CatalogDB != nil {
		return c.CatalogDB.Close()
	}
	return nil
}
