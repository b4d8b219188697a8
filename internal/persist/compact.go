package persist

// scope is one map instance's slice of a table.
type scope struct {
	mapID      uint32
	instanceID uint32
}

// compact keeps only the last queued write per row. A wipe of a scope drops
// every write queued before it for that scope, and later writes follow it.
func compact[W any, K comparable](ws []W, keyOf func(W) (row K, s scope, wipe bool)) []W {
	out := make([]W, 0, len(ws))
	pos := make(map[K]int, len(ws))
	for _, w := range ws {
		k, s, wipe := keyOf(w)
		if !wipe {
			if i, ok := pos[k]; ok {
				out[i] = w
				continue
			}
			pos[k] = len(out)
			out = append(out, w)
			continue
		}

		kept := out[:0]
		for _, o := range out {
			if _, sc, _ := keyOf(o); sc != s {
				kept = append(kept, o)
			}
		}
		out = append(kept, w)
		clear(pos)
		for i, o := range out {
			if ok, _, owipe := keyOf(o); !owipe {
				pos[ok] = i
			}
		}
	}
	return out
}
