// Package projection derives display views from an observer's mirror.
//
// Everything here is a pure function of its inputs: the mirror is never
// modified and no state is kept between calls, so a view can be recomputed
// after every mirror change.
package projection
