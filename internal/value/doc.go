// Package value holds the JSON value model shared by the document store,
// the template renderer and the remote pipeline.
//
// Values are the plain Go shapes produced by encoding/json with UseNumber:
// nil, bool, string, json.Number, []any and map[string]any. Numbers stay as
// json.Number so integers larger than 2^53 survive a round trip through the
// store and the remote endpoint untouched.
//
// Marshal gives every value exactly one byte encoding (UTF-16 key order, no
// HTML escaping, strings untouched). Equality of document fields and golden
// comparisons of rendered output are both defined on that encoding.
package value
