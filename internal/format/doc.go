// Package format holds the formatting metadata layered over a document's
// plain text.
//
// Formatting lives entirely outside the text: a [Range] marks a
// character interval with a [Kind] (bold, italic, underline, heading,
// quote) and a [Comment] marks a single offset. The [Model] owns both
// collections and keeps them valid while the text underneath changes.
//
// # Kinds
//
// Kinds fall into two classes. Character kinds (bold, italic, underline)
// may overlap anything. Block kinds (heading, quote) are exclusive: a new
// block range replaces whatever block formatting it overlaps.
//
// Applying a character kind toggles: if the span is already fully covered
// by that kind the span is removed, otherwise the span is unioned with the
// existing ranges it touches.
//
// # Shifting
//
// [Model.ShiftPositions] applies one text splice to every anchor so that
// formatting follows the text it was applied to. Ranges that collapse to
// nothing are dropped.
package format
