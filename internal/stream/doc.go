// Package stream provides the channel combinators interactors are built from.
//
// Every combinator takes a context and an input channel and returns a new
// output channel owned by a goroutine it starts. Outputs close when the input
// closes or the context ends, so a chain of combinators tears itself down as
// soon as its scope is cancelled.
//
// Map, ConcatMap and Scan preserve input order.
package stream
