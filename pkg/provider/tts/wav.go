package tts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// DecodeWAV parses a RIFF/WAVE buffer as returned by HTTP synthesis servers.
// 16-bit integer PCM and 32-bit IEEE float data are supported. A WAV whose
// data chunk is empty decodes to an empty [Result].
func DecodeWAV(b []byte) (*Result, error) {
	b, dataLen, hasData := patchStreamingSizes(b)
	if hasData && dataLen == 0 {
		return &Result{}, nil
	}

	d := wav.NewDecoder(bytes.NewReader(b))
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("tts: invalid WAV: %w", err)
		}
		return nil, errors.New("tts: invalid WAV")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("tts: decode WAV: %w", err)
	}

	format := d.Format()
	res := &Result{SampleRate: format.SampleRate, Channels: format.NumChannels}
	switch {
	case d.WavAudioFormat == wavFormatPCM && d.BitDepth == 16:
		res.PCM = make([]int16, len(buf.Data))
		for i, v := range buf.Data {
			res.PCM[i] = int16(v)
		}
	case d.WavAudioFormat == wavFormatFloat && d.BitDepth == 32:
		// 32-bit samples come back as the signed integer of their bits.
		res.Float = make([]float32, len(buf.Data))
		for i, v := range buf.Data {
			res.Float[i] = math.Float32frombits(uint32(int32(v)))
		}
	default:
		return nil, fmt.Errorf("tts: unsupported WAV encoding (format %d, %d bits)", d.WavAudioFormat, d.BitDepth)
	}
	return res, nil
}

// patchStreamingSizes rewrites the RIFF and data chunk sizes of b when a
// streaming server left them as 0 or 0xFFFFFFFF, or the body was cut short.
// It returns the data chunk length and whether a data chunk was found. b is
// copied before any write.
func patchStreamingSizes(b []byte) ([]byte, int, bool) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return b, 0, false
	}
	out, copied := b, false
	patch := func(at, v int) {
		if !copied {
			out, copied = bytes.Clone(b), true
		}
		binary.LittleEndian.PutUint32(out[at:], uint32(v))
	}

	if size := int64(binary.LittleEndian.Uint32(b[4:8])); size == 0 || size > int64(len(b)-8) {
		patch(4, len(b)-8)
	}
	for off := int64(12); off+8 <= int64(len(b)); {
		size := int64(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		if string(b[off:off+4]) == "data" {
			avail := int64(len(b)) - off - 8
			if size == 0 || size > avail {
				patch(int(off+4), int(avail))
				size = avail
			}
			return out, int(size), true
		}
		off += 8 + size + size%2
	}
	return out, 0, false
}

// EncodeWAV writes r as a 16-bit PCM RIFF/WAVE buffer. Test servers use it
// to fake synthesis endpoints. It returns nil if r cannot be encoded.
func EncodeWAV(r *Result) []byte {
	pcm := r.PCM16()
	ch := r.NumChannels()
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	var w memWriteSeeker
	enc := wav.NewEncoder(&w, r.SampleRate, 16, ch, wavFormatPCM)
	err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: ch, SampleRate: r.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return nil
	}
	if err := enc.Close(); err != nil {
		return nil
	}
	return w.buf
}

// memWriteSeeker is the in-memory io.WriteSeeker the WAV encoder needs to
// backfill chunk sizes.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, errors.New("tts: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("tts: negative seek position")
	}
	m.pos = int(next)
	return next, nil
}
