package indexer

import (
	"strconv"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/singleflight"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/syntax"
)

// treeCache keeps the most recently used trees, one per file. Oldest entries
// are evicted first; an evicted tree stays valid and is simply parsed again
// on the next request.
type treeCache struct {
	mu    sync.Mutex
	size  int
	trees *orderedmap.OrderedMap[string, *syntax.Tree]
	group singleflight.Group
}

func newTreeCache(size int) *treeCache {
	return &treeCache{
		size:  max(size, 0),
		trees: orderedmap.New[string, *syntax.Tree](),
	}
}

// get returns the cached tree for path when it matches version.
func (c *treeCache) get(path string, version uint64) *syntax.Tree {
	c.mu.Lock()
	defer c.mu.Unlock()
	tree, ok := c.trees.Get(path)
	if !ok || tree.Version() != version {
		return nil
	}
	_ = c.trees.MoveToBack(path)
	return tree
}

// put caches tree as the newest entry for its path. A cached tree of an older
// version is detached; a newer one is kept.
func (c *treeCache) put(path string, tree *syntax.Tree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.trees.Get(path); ok {
		if cur.Version() > tree.Version() {
			return
		}
		if cur != tree && cur.Version() < tree.Version() {
			cur.Detach()
		}
	}
	if c.size == 0 {
		c.trees.Delete(path)
		return
	}
	c.trees.Set(path, tree)
	_ = c.trees.MoveToBack(path)
	for c.trees.Len() > c.size {
		oldest := c.trees.Oldest()
		c.trees.Delete(oldest.Key)
	}
}

// drop removes and detaches the cached tree of path.
func (c *treeCache) drop(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.trees.Delete(path); ok {
		cur.Detach()
	}
}

// clear evicts every tree without detaching it.
func (c *treeCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees = orderedmap.New[string, *syntax.Tree]()
}

func (c *treeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trees.Len()
}

// load parses a tree once even when many readers ask for it concurrently.
func (c *treeCache) load(path string, version uint64, parse func() (*syntax.Tree, error)) (*syntax.Tree, error) {
	key := path + "@" + strconv.FormatUint(version, 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		if tree := c.get(path, version); tree != nil {
			return tree, nil
		}
		tree, err := parse()
		if err != nil {
			return nil, err
		}
		c.put(path, tree)
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*syntax.Tree), nil
}
