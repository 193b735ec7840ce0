// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so components can hold a Logger value whose sinks (console, file,
// telegram ops group) can be swapped at runtime by the owning Service without
// re-plumbing loggers through the app.
package logx
