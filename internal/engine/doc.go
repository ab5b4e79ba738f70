// Package engine locates the engine binary and builds the command line and
// environment used to spawn it.
//
// # Discovery
//
// The Discoverer interface locates the engine binary:
//
//	discoverer := engine.NewDiscoverer(&engine.Config{
//	    EnginePath: "",           // Optional explicit path
//	    Logger:     slog.Default(),
//	})
//	enginePath, err := discoverer.Discover(ctx)
//
// Discovery searches in the following order:
//  1. Explicit path in Config.EnginePath (if provided)
//  2. System PATH, for Config.Binary or DefaultBinary
//  3. Common installation directories (/usr/local/bin, /usr/bin, ~/.local/bin)
//
// # Command Building
//
//	args := engine.BuildArgs(options)
//	env := engine.BuildEnvironment(options)
package engine
