package store

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/mapic/tilecube/pkg/logger"
)

const (
	smallTileSize  = 1024      // 1KB
	mediumTileSize = 10 * 1024 // 10KB
	largeTileSize  = 50 * 1024 // 50KB
)

func generateTileData(size int) []byte {
	data := make([]byte, size)
	rand.Read(data)
	return data
}

func tileKey(i int) string {
	return RasterTileKey("layer_id-bench", i%20, i%1000, i%1000)
}

func setupSQLiteStore(b *testing.B) *SQLiteStore {
	b.Helper()
	s, err := NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"), logger.Nop())
	if err != nil {
		b.Fatalf("Failed to create SQLite store: %v", err)
	}
	b.Cleanup(func() { s.Close() })
	return s
}

func setupFilesystemStore(b *testing.B) *FilesystemStore {
	b.Helper()
	s, err := NewFilesystemStore(b.TempDir())
	if err != nil {
		b.Fatalf("Failed to create filesystem store: %v", err)
	}
	return s
}

func benchmarkSet(b *testing.B, s Store, size int) {
	ctx := context.Background()
	data := generateTileData(size)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Set(ctx, tileKey(i), data); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
	}
}

func benchmarkGet(b *testing.B, s Store, size int) {
	ctx := context.Background()
	data := generateTileData(size)

	// Populate store
	for i := 0; i < 100; i++ {
		s.Set(ctx, tileKey(i), data)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, err := s.Get(ctx, tileKey(i%100))
		if err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

func BenchmarkSet_SQLite_Small(b *testing.B)     { benchmarkSet(b, setupSQLiteStore(b), smallTileSize) }
func BenchmarkSet_Map_Small(b *testing.B)        { benchmarkSet(b, NewMapStore(), smallTileSize) }
func BenchmarkSet_Filesystem_Small(b *testing.B) { benchmarkSet(b, setupFilesystemStore(b), smallTileSize) }

func BenchmarkSet_SQLite_Large(b *testing.B)     { benchmarkSet(b, setupSQLiteStore(b), largeTileSize) }
func BenchmarkSet_Map_Large(b *testing.B)        { benchmarkSet(b, NewMapStore(), largeTileSize) }
func BenchmarkSet_Filesystem_Large(b *testing.B) { benchmarkSet(b, setupFilesystemStore(b), largeTileSize) }

func BenchmarkGet_SQLite_Small(b *testing.B)     { benchmarkGet(b, setupSQLiteStore(b), smallTileSize) }
func BenchmarkGet_Map_Small(b *testing.B)        { benchmarkGet(b, NewMapStore(), smallTileSize) }
func BenchmarkGet_Filesystem_Small(b *testing.B) { benchmarkGet(b, setupFilesystemStore(b), smallTileSize) }

func BenchmarkGet_SQLite_Large(b *testing.B)     { benchmarkGet(b, setupSQLiteStore(b), largeTileSize) }
func BenchmarkGet_Map_Large(b *testing.B)        { benchmarkGet(b, NewMapStore(), largeTileSize) }
func BenchmarkGet_Filesystem_Large(b *testing.B) { benchmarkGet(b, setupFilesystemStore(b), largeTileSize) }

// Mixed operations (80% reads, 20% writes - typical cache pattern)
func benchmarkMixed(b *testing.B, s Store) {
	ctx := context.Background()
	data := generateTileData(mediumTileSize)

	// Pre-populate with some data
	for i := 0; i < 50; i++ {
		s.Set(ctx, tileKey(i), data)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := tileKey(i % 100)
		if i%5 == 0 {
			// 20% writes
			s.Set(ctx, key, data)
		} else {
			// 80% reads
			s.Get(ctx, key)
		}
	}
}

func BenchmarkMixed_SQLite(b *testing.B)     { benchmarkMixed(b, setupSQLiteStore(b)) }
func BenchmarkMixed_Map(b *testing.B)        { benchmarkMixed(b, NewMapStore()) }
func BenchmarkMixed_Filesystem(b *testing.B) { benchmarkMixed(b, setupFilesystemStore(b)) }

// Concurrent operations, the shared-handle pattern used in production
func benchmarkConcurrent(b *testing.B, s Store) {
	ctx := context.Background()
	data := generateTileData(mediumTileSize)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := tileKey(i % 100)
			if i%5 == 0 {
				s.Set(ctx, key, data)
			} else {
				s.Get(ctx, key)
			}
			i++
		}
	})
}

func BenchmarkConcurrent_SQLite(b *testing.B)     { benchmarkConcurrent(b, setupSQLiteStore(b)) }
func BenchmarkConcurrent_Map(b *testing.B)        { benchmarkConcurrent(b, NewMapStore()) }
func BenchmarkConcurrent_Filesystem(b *testing.B) { benchmarkConcurrent(b, setupFilesystemStore(b)) }
