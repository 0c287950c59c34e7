package chat

// DefaultBatchSize is the number of channels one session joins by default.
const DefaultBatchSize = 100

// Batch is a contiguous slice of the resolved channel list handled by one
// chat session.
type Batch struct {
	Index    int
	Channels []ChannelName
}

// Plan partitions channels into ceil(len/size) contiguous batches, preserving
// order. Only the last batch may be shorter than size. An empty input yields
// no batches. Non-positive sizes are treated as 1.
func Plan(channels []ChannelName, size int) []Batch {
	if size <= 0 {
		size = 1
	}
	if len(channels) == 0 {
		return nil
	}
	out := make([]Batch, 0, (len(channels)+size-1)/size)
	for start := 0; start < len(channels); start += size {
		end := min(start+size, len(channels))
		part := make([]ChannelName, end-start)
		copy(part, channels[start:end])
		out = append(out, Batch{Index: len(out), Channels: part})
	}
	return out
}
