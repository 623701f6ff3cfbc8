// Package monitor runs a watch session: it polls or waits on a change
// detector, merges every batch of new tiles into the running mosaic and asks
// the presenter to show the result. A session stops when it is asked to, when
// no tiles arrive for the idle timeout, or when the watched directory
// disappears.
package monitor
