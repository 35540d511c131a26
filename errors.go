package hsm

import "errors"

// Structural validation errors. Init returns ErrNoRoot, ErrMissingInitial
// and ErrOrthogonalChildNotRegion (joined via errors.Join when several nodes
// fail) and also reports each one through Spy.Error. ErrDestinationIsRegion
// is the panic value of Transition and AddRow; ErrDepthCeilingExceeded is
// reported through Spy.Error and then panicked by Init.
var (
	ErrNoRoot                   = errors.New("hsm: machine has no root node")
	ErrMissingInitial           = errors.New("hsm: composite or region has no initial sub-state")
	ErrOrthogonalChildNotRegion = errors.New("hsm: orthogonal state has a non-region child")
	ErrDestinationIsRegion      = errors.New("hsm: a transition can not target a region")
	ErrDepthCeilingExceeded     = errors.New("hsm: region nesting depth ceiling exceeded")
)
