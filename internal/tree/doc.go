// Package tree models the live editable surface the overlay engine
// decorates.
//
// A tree is made of element nodes and leaves. Text leaves carry the
// document characters; embed leaves (images, audio badges) and marker
// leaves (comment anchors) have zero text length. Concatenating every
// text leaf in document order yields the document text.
//
// Everything that maps between character offsets and tree positions goes
// through the ordered leaf walk: leaves are visited left to right while
// their text lengths are summed, so an absolute offset is always
// "leaf + offset inside the leaf".
package tree
