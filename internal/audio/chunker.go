package audio

// ChunkString splits s into fixed-size pieces for progressive transport.
// Concatenating the result always reconstructs s exactly. Empty input yields
// no chunks; a non-positive size yields the input as a single chunk.
func ChunkString(s string, size int) []string {
	if s == "" {
		return nil
	}
	if size <= 0 || len(s) <= size {
		return []string{s}
	}
	chunks := make([]string, 0, (len(s)+size-1)/size)
	for off := 0; off < len(s); off += size {
		end := off + size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[off:end])
	}
	return chunks
}
