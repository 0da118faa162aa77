// Package treewalk caches and tracks asynchronous tree traversals.
//
// A CachingSource wraps any source.Source (filesystem, object store,
// database adjacency table) with a memory-bounded LRU cache of child
// listings, keyed by (path, depth), and a tracker that answers "was this
// node discovered?" and "was this node expanded?" even after cache entries
// are evicted. BFS, DFS and a level-parallel BFS drive traversals on top,
// and the recovery package adds pluggable failure policies for flaky
// backends.
//
// Basic usage:
//
//	src := source.NewLocalSource("/var/data")
//	cs, err := treewalk.New(src,
//	    treewalk.WithMaxMemoryMB(64),
//	    treewalk.WithValidationTTL(30*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cs.Close()
//
//	for v, err := range treewalk.BFS(ctx, cs, src.Root()) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(v.Depth, v.Node.Path())
//	}
package treewalk
