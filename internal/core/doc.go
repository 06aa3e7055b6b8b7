// Package core provides the validation pipeline for SEACE procurement workbooks.
//
// The package holds all domain logic independent of the web layer, so the
// HTTP server, the CLI and tests drive the same code.
//
// # Pipeline
//
// An upload flows through fixed stages:
//
//  1. Parse: a [Parser] turns the workbook into a [Table]
//  2. Map headers: [MapHeaders] renames recognized headers to canonical names
//  3. Validate: [Validate] checks the profile's required fields
//  4. Coerce dates: [CoerceDates] turns the date column into timestamps
//  5. Filter: [Dataset.Filter] applies the user's [Criteria]
//  6. Export: the filtered table is encoded and sent to a sink
//
// [Service.Ingest] runs stages 1 to 4. Sinks are [Service.Download],
// [Service.SendMail] and [Service.Archive].
//
// # Errors
//
// Pipeline failures are [*Error] values with one of four kinds. [Halts]
// reports whether an error stops the pipeline (parse, missing columns) or
// only fails the current send (invalid recipient, transport). [MapError]
// turns any error into a coded Spanish message for the UI.
//
// # Sessions
//
// A [SessionStore] keeps one [Session] per browser in memory. A session owns
// the validated [Dataset] and the [MailState] used to suppress duplicate
// sends. [SessionStore.StartSweeper] expires idle sessions.
package core
