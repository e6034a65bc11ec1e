package persist

import (
	"fmt"

	"github.com/dburihabwa/sgx-fs/pkg/sealing"
)

// JoinBlocks concatenates a file's sealed blocks into the single byte
// stream persisted for it. Each block is self-describing (header plus
// payload), so no extra framing is needed.
func JoinBlocks(blocks [][]byte) []byte {
	total := 0
	for _, block := range blocks {
		total += len(block)
	}
	joined := make([]byte, 0, total)
	for _, block := range blocks {
		joined = append(joined, block...)
	}
	return joined
}

// SplitBlocks re-slices a persisted byte stream into its sealed blocks by
// walking the payload-size headers. A stream that does not tile exactly
// into whole blocks fails with ErrCorruptDump.
func SplitBlocks(data []byte) ([][]byte, error) {
	var blocks [][]byte
	offset := 0
	for offset < len(data) {
		payload, err := sealing.PayloadSize(data[offset:])
		if err != nil {
			return nil, fmt.Errorf("%w: block %d at offset %d: %v",
				ErrCorruptDump, len(blocks), offset, err)
		}
		end := offset + sealing.SealedSize(payload)
		if end > len(data) {
			return nil, fmt.Errorf("%w: block %d at offset %d extends past %d bytes",
				ErrCorruptDump, len(blocks), offset, len(data))
		}
		blocks = append(blocks, data[offset:end:end])
		offset = end
	}
	return blocks, nil
}
