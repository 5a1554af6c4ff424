// Package core loads CSV files into PostgreSQL tables through the bulk
// package.
//
// It holds the domain logic independent of the HTTP layer, so handlers,
// tools and tests drive it the same way.
//
// # Table Registry
//
// Tables are registered at init time using [Register]. A [TableDefinition]
// pairs the CSV columns with a [Loader] that turns validated rows into
// entities:
//
//	core.Register(core.TableDefinition{
//	    Info: core.TableInfo{Key: "sfdc_customers", Group: "SFDC", Label: "Customers"},
//	    FieldSpecs: []core.FieldSpec{
//	        {Name: "Account ID", Field: "AccountID", Required: true, Type: core.FieldText},
//	        {Name: "Annual Revenue", Field: "AnnualRevenue", Type: core.FieldNumeric},
//	    },
//	    Loader: core.NewCSVLoader(specs, buildCustomer),
//	})
//
// # Loads
//
// [Service.Load] streams one file:
//
//  1. The body is decoded by [NewCSVStream] and the header row located
//  2. Each record is validated and built into an entity
//  3. Entities are written in batches with COPY (insert) or through a
//     staging table (update), all inside one transaction
//  4. A row the database rejects is reported in [LoadResult.FailedRows]
//     and its batch is written again without it
//
// Concurrent loads are bounded by a [LoadLimiter].
//
// # Error Handling
//
// [MapError] turns technical errors into a [UserMessage] with a code for
// support reference. Typed bulk errors and SQLSTATE codes are matched
// before message patterns.
package core
