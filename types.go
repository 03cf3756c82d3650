// Package catalogq runs filtered, ordered and paginated queries over a
// catalog of records and groups, routing them to an external search
// delegate with a relational fallback.
//
//	c, err := catalogq.New(catalogq.WithPostgres(dsn))
//	...
//	page, err := c.Records().
//		Filter(catalogq.And(
//			catalogq.Where("title").Contains("CEO"),
//			catalogq.Where("group.industries").HasAny("technology"),
//		)).
//		OrderBy("created_at", catalogq.Desc).
//		Limit(50).
//		Do(ctx)
package catalogq

import (
	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
	"github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/domain/result"
	healthuc "github.com/kailas-cloud/catalogq/internal/usecase/health"
)

// Kind identifies the primary table a query runs against.
type Kind = domain.Kind

// Entity kinds.
const (
	KindRecord = domain.KindRecord
	KindGroup  = domain.KindGroup
)

// Row shapes.
type (
	Record           = model.Record
	Group            = model.Group
	RecordEnrichment = model.RecordEnrichment
	GroupEnrichment  = model.GroupEnrichment
)

// Page is one page of query results.
type Page = result.Page

// ServedBy names the execution path that produced a page.
type ServedBy = result.ServedBy

// Execution paths.
const (
	ServedByDelegate   = result.ServedByDelegate
	ServedByRelational = result.ServedByRelational
)

// Direction is a sort direction.
type Direction = query.Direction

// Sort directions.
const (
	Asc  = query.Asc
	Desc = query.Desc
)

// Route overrides the routing mode for one query.
type Route = query.Route

// Routes.
const (
	RouteAuto       = query.RouteAuto
	RouteDelegate   = query.RouteDelegate
	RouteRelational = query.RouteRelational
)

// HealthReport aggregates backend health checks.
type HealthReport = healthuc.Report

// Errors returned by queries. Match them with errors.Is.
var (
	ErrSpecification       = domain.ErrSpecification
	ErrDelegateUnavailable = domain.ErrDelegateUnavailable
	ErrBackend             = domain.ErrBackend
	ErrServiceUnavailable  = domain.ErrServiceUnavailable
)

// SpecificationError details a rejected filter, order or page descriptor.
type SpecificationError = domain.SpecificationError
