// Package anchor keeps section highlights attached to the text they
// cover.
//
// Highlights belong to the Sections collaborator: this package never
// creates, deletes or recolors one. What it owns is geometry. A
// [Placement] says where a [Highlight] currently sits in the text, and the
// [Translator] keeps placements correct in two ways:
//
//   - Shift applies one edit arithmetically. It is exact as long as the
//     edit is the only source of drift.
//   - Recover relocates a highlight by content when offsets cannot be
//     trusted (after a reload, a bulk import, or a failed Verify). It
//     tries the captured context pattern, then the highlighted text alone,
//     and finally keeps clamped last-known offsets and marks the
//     placement degraded.
//
// Surrounding text is far more stable than offsets under reloads and
// concurrent edits, which is why content matching comes first.
package anchor
