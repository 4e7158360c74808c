package discord

import (
	"fmt"

	"layeh.com/gopus"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
	// opusFrameBytes is the PCM input size of one frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample = 3840 bytes.
	opusFrameBytes = opusFrameSize * opusChannels * 2
	// maxOpusPacket bounds the encoded size of one frame.
	maxOpusPacket = 4000
)

// silenceFrame is the Opus encoding of 20 ms of silence. Discord expects a
// few of them after speech ends to avoid interpolation artefacts.
var silenceFrame = []byte{0xF8, 0xFF, 0xFE}

const trailingSilenceFrames = 5

// opusEncoder wraps a gopus Opus encoder for the output stream.
type opusEncoder struct {
	enc *gopus.Encoder
}

// newOpusEncoder creates a new Opus encoder configured for Discord audio.
func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes one frame of interleaved little-endian PCM into an Opus
// packet. pcmBytes must be exactly [opusFrameBytes] long.
func (e *opusEncoder) encode(pcmBytes []byte) ([]byte, error) {
	opus, err := e.enc.Encode(bytesToInt16s(pcmBytes), opusFrameSize, maxOpusPacket)
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return opus, nil
}

// frames splits pcm into [opusFrameBytes] chunks. The last chunk is padded
// with silence.
func frames(pcm []byte) [][]byte {
	out := make([][]byte, 0, (len(pcm)+opusFrameBytes-1)/opusFrameBytes)
	for len(pcm) > 0 {
		n := min(len(pcm), opusFrameBytes)
		frame := pcm[:n]
		if n < opusFrameBytes {
			frame = make([]byte, opusFrameBytes)
			copy(frame, pcm[:n])
		}
		out = append(out, frame)
		pcm = pcm[n:]
	}
	return out
}

// bytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
