package player

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// decoder produces interleaved signed 16-bit little-endian PCM.
type decoder interface {
	io.ReadSeeker
	Length() int64
	SampleRate() int
	ChannelCount() int
}

type openFunc func(f *os.File) (decoder, error)

var decoders = map[string]openFunc{
	".mp3":  openMP3,
	".wav":  openWAV,
	".flac": openFLAC,
	".ogg":  openOGG,
}

// SupportedExt reports whether the file extension of path can be decoded.
func SupportedExt(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

func newDecoder(f *os.File) (decoder, error) {
	ext := strings.ToLower(filepath.Ext(f.Name()))
	open, ok := decoders[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", ext)
	}
	return open(f)
}

// pcmBuffer holds the bookkeeping shared by the converting decoders:
// converted bytes not yet handed out, the output position and length.
type pcmBuffer struct {
	pending  []byte
	pos      int64
	total    int64
	rate     int
	channels int
}

func (b *pcmBuffer) drain(p []byte) (int, bool) {
	if len(b.pending) == 0 {
		return 0, false
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	b.pos += int64(n)
	return n, true
}

func (b *pcmBuffer) emit(p, raw []byte) int {
	n := copy(p, raw)
	if n < len(raw) {
		b.pending = raw[n:]
	}
	b.pos += int64(n)
	return n
}

// target resolves Seek arguments to a clamped output offset.
func (b *pcmBuffer) target(offset int64, whence int) int64 {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.pos + offset
	case io.SeekEnd:
		pos = b.total + offset
	}
	return max(0, min(pos, b.total))
}

func (b *pcmBuffer) moved(pos int64) {
	b.pending = nil
	b.pos = pos
}

func (b *pcmBuffer) frameSize() int64  { return int64(b.channels) * 2 }
func (b *pcmBuffer) Length() int64     { return b.total }
func (b *pcmBuffer) SampleRate() int   { return b.rate }
func (b *pcmBuffer) ChannelCount() int { return b.channels }

func clamp16(s int) int16 {
	return int16(max(-32768, min(s, 32767)))
}

type mp3Decoder struct {
	*mp3.Decoder
}

func openMP3(f *os.File) (decoder, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decoding MP3: %w", err)
	}
	return mp3Decoder{dec}, nil
}

// go-mp3 always decodes to 16-bit stereo.
func (d mp3Decoder) ChannelCount() int { return 2 }

type wavDecoder struct {
	pcmBuffer
	file     *os.File
	pcmStart int64
	srcDepth int
	srcFrame int64
}

func openWAV(f *os.File) (decoder, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("reading WAV PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	depth := int(dec.BitDepth)
	srcFrame := int64(channels) * int64(depth) / 8
	if srcFrame == 0 {
		return nil, fmt.Errorf("invalid WAV format: %d channels at %d bits", channels, depth)
	}
	start, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locating WAV PCM data: %w", err)
	}

	return &wavDecoder{
		pcmBuffer: pcmBuffer{
			total:    dec.PCMLen() / srcFrame * int64(channels) * 2,
			rate:     int(dec.SampleRate),
			channels: channels,
		},
		file:     f,
		pcmStart: start,
		srcDepth: depth,
		srcFrame: srcFrame,
	}, nil
}

func (d *wavDecoder) Read(p []byte) (int, error) {
	if n, ok := d.drain(p); ok {
		return n, nil
	}

	width := d.srcDepth / 8
	samples := max(len(p)/2, 1)
	src := make([]byte, samples*width)
	n, err := io.ReadFull(d.file, src)
	read := n / width
	if read == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}

	raw := make([]byte, read*2)
	for i := range read {
		off := i * width
		var s int
		switch d.srcDepth {
		case 8:
			s = (int(src[off]) - 128) << 8
		case 16:
			s = int(int16(binary.LittleEndian.Uint16(src[off:])))
		case 24:
			v := int32(src[off]) | int32(src[off+1])<<8 | int32(src[off+2])<<16
			if v&0x800000 != 0 {
				v |= ^0xFFFFFF
			}
			s = int(v >> 8)
		case 32:
			s = int(int32(binary.LittleEndian.Uint32(src[off:])) >> 16)
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(clamp16(s)))
	}

	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return d.emit(p, raw), err
}

func (d *wavDecoder) Seek(offset int64, whence int) (int64, error) {
	pos := d.target(offset, whence)
	src := pos / d.frameSize() * d.srcFrame
	if _, err := d.file.Seek(d.pcmStart+src, io.SeekStart); err != nil {
		return d.pos, err
	}
	d.moved(pos)
	return pos, nil
}

type flacDecoder struct {
	pcmBuffer
	stream *flac.Stream
	bps    int
}

func openFLAC(f *os.File) (decoder, error) {
	stream, err := flac.NewSeek(f)
	if err != nil {
		return nil, fmt.Errorf("decoding FLAC: %w", err)
	}
	info := stream.Info
	channels := int(info.NChannels)
	return &flacDecoder{
		pcmBuffer: pcmBuffer{
			total:    int64(info.NSamples) * int64(channels) * 2,
			rate:     int(info.SampleRate),
			channels: channels,
		},
		stream: stream,
		bps:    int(info.BitsPerSample),
	}, nil
}

func (d *flacDecoder) Read(p []byte) (int, error) {
	if n, ok := d.drain(p); ok {
		return n, nil
	}

	frame, err := d.stream.ParseNext()
	if err != nil {
		return 0, err
	}

	samples := int(frame.Subframes[0].NSamples)
	raw := make([]byte, samples*d.channels*2)
	for i := range samples {
		for ch := range d.channels {
			s := int(frame.Subframes[ch].Samples[i])
			switch {
			case d.bps > 16:
				s >>= d.bps - 16
			case d.bps < 16:
				s <<= 16 - d.bps
			}
			binary.LittleEndian.PutUint16(raw[(i*d.channels+ch)*2:], uint16(clamp16(s)))
		}
	}
	return d.emit(p, raw), nil
}

func (d *flacDecoder) Seek(offset int64, whence int) (int64, error) {
	pos := d.target(offset, whence)
	if _, err := d.stream.Seek(uint64(pos / d.frameSize())); err != nil {
		return d.pos, err
	}
	d.moved(pos)
	return pos, nil
}

type oggDecoder struct {
	pcmBuffer
	reader *oggvorbis.Reader
}

func openOGG(f *os.File) (decoder, error) {
	reader, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decoding OGG: %w", err)
	}
	channels := reader.Channels()
	return &oggDecoder{
		pcmBuffer: pcmBuffer{
			total:    reader.Length() * int64(channels) * 2,
			rate:     reader.SampleRate(),
			channels: channels,
		},
		reader: reader,
	}, nil
}

func (d *oggDecoder) Read(p []byte) (int, error) {
	if n, ok := d.drain(p); ok {
		return n, nil
	}

	samples := make([]float32, max(len(p)/2, 1))
	n, err := d.reader.Read(samples)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}

	raw := make([]byte, n*2)
	for i, s := range samples[:n] {
		s = max(-1, min(s, 1))
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(s*32767)))
	}
	return d.emit(p, raw), err
}

func (d *oggDecoder) Seek(offset int64, whence int) (int64, error) {
	pos := d.target(offset, whence)
	if err := d.reader.SetPosition(pos / d.frameSize()); err != nil {
		return d.pos, err
	}
	d.moved(pos)
	return pos, nil
}
