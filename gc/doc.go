// Package gc implements the Fen runtime memory manager: a semispace copying
// collector for programs compiled to WebAssembly.
//
// The native call stack of a wasm program cannot be walked by the runtime,
// so the generated code maintains a parallel shadow stack of heap references
// (one frame per active invocation) through the entry points on Runtime.
// Collection is deferred to function-boundary checkpoints; non-heap working
// state is parked in a fixed offloading region at the start of linear memory
// for the duration of a cycle, and a per-frame epoch stamp keeps the cost of
// a cycle proportional to live references rather than total frames.
package gc
