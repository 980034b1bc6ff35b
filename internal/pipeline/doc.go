// Package pipeline turns bound claim data into self-contained page markup.
//
// Stages, in the order the primary renderer runs them:
//   - narrative fields normalized and converted from Markdown via Goldmark
//   - the claim template evaluated with html/template
//   - stylesheet injected as an inline <style> block
//   - evaluated markup scanned for leftover template actions and for
//     embedded images
//
// PDF generation lives in the root claimpdf package (headless Chrome via
// go-rod). Nothing here touches the network or the filesystem.
package pipeline
