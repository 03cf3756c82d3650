package redis

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/catalogq/internal/db"
)

// scanBatch is the SCAN COUNT hint and the maximum keys per UNLINK.
const scanBatch = 200

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Get().Key(key).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// SetWithTTL stores a value with an expiration.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// DeletePrefix walks the keyspace of every node with SCAN MATCH prefix* and
// UNLINKs each page of matches on the node that returned it. A cluster
// client fans out to all primaries; a standalone client has one node. Keys
// of one page must share a hash slot, which callers guarantee with a hash
// tag in prefix. Keys written concurrently may survive.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	nodes := s.client.Nodes()
	addrs := make([]string, 0, len(nodes))
	for addr := range nodes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	removed := 0
	for _, addr := range addrs {
		n, err := s.deletePrefixOn(ctx, nodes[addr], escapeGlob(prefix)+"*")
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *Store) deletePrefixOn(ctx context.Context, node rueidis.Client, pattern string) (int, error) {
	var cursor uint64
	removed := 0
	for {
		cmd := node.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatch).Build()
		res, err := node.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return removed, &db.Error{Op: db.OpScan, Err: err}
		}
		if len(res.Elements) > 0 {
			unlink := node.B().Unlink().Key(res.Elements...).Build()
			n, err := node.Do(ctx, unlink).AsInt64()
			if err != nil {
				return removed, &db.Error{Op: db.OpUnlink, Err: err}
			}
			removed += int(n)
		}
		cursor = res.Cursor
		if cursor == 0 {
			return removed, nil
		}
	}
}

// escapeGlob escapes SCAN MATCH metacharacters so the prefix is matched literally.
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
