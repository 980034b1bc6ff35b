// Package claimpdf renders warranty claim submissions into PDF documents.
//
// # Renderers
//
// Two renderers produce the same claim document by different routes:
//
//  1. PrimaryRenderer binds the claim into an HTML page template, checks
//     that no placeholder survived evaluation and prints the page to PDF
//     through headless Chrome (go-rod).
//  2. LegacyRenderer clones a canonical spreadsheet template into a scratch
//     sheet, fills it through a cell guard that only writes inside
//     declared fillable zones, exports the sheet as PDF and deletes it.
//
// Generator runs the primary renderer and falls back to the legacy one
// exactly once:
//
//	gen := claimpdf.NewGenerator(primary, legacy)
//	res := gen.Generate(ctx, claim)
//	if !res.Success {
//	    log.Print(res.Error)
//	}
//
// Both renderers save the document under <folder>/<documentID>/ in a blob
// store and return its URL forms. Generate never returns an error; the
// outcome is carried by RenderResult.
//
// # Images
//
// Image references arrive as data URIs, raw base64 tokens, storage ids or
// storage URLs. Each is resolved to inline bytes and shrunk to its class
// budget (1 MiB for signatures, 3 MiB otherwise). The logo is configured
// on the renderer with WithLogo and is mandatory: when it cannot be
// resolved the primary render fails and the generator falls back.
//
// # Document IDs
//
// Generator.Submit reserves a date-scoped sequential ID such as
// CLM-20260314-0007 under a lock, appends the claim row to the record
// store, renders, and writes the document reference back to the row.
//
// # Audit
//
// Every primary render produces an AuditReport cross-checking resolved
// images against embedded ones. A KeyMismatch verdict means images were
// resolved but none reached the markup; it is recorded, never fatal.
package claimpdf
