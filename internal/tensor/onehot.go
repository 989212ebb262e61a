package tensor

// Channels is the one-hot depth: A, C, G, T.
const Channels = 4

// OneHot encodes seq as a [1, len(seq), 4] tensor with channel order A, C, G, T.
// Any other character (N, IUPAC codes) encodes as all zeros.
func OneHot(seq string) Tensor {
	t := New(1, len(seq), Channels)
	for i := 0; i < len(seq); i++ {
		ch := baseChannel(seq[i])
		if ch >= 0 {
			t.Data[i*Channels+ch] = 1
		}
	}
	return t
}

func baseChannel(b byte) int {
	switch b {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'T', 't':
		return 3
	}
	return -1
}
