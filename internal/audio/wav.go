package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const wavHeaderSize = 44

// EncodeWAV renders the segment as a canonical RIFF/WAVE PCM16 file.
func EncodeWAV(seg Segment) ([]byte, error) {
	if seg.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", seg.SampleRate)
	}
	channels := seg.Channels
	if channels <= 0 {
		channels = 1
	}
	pcm := seg.PCM()
	blockAlign := channels * SampleWidth
	byteRate := seg.SampleRate * blockAlign

	buf := make([]byte, wavHeaderSize, wavHeaderSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(seg.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], SampleWidth*8)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	return append(buf, pcm...), nil
}

// WriteTempWAV writes seg to a temporary WAV file in dir (os.TempDir when
// empty). The returned cleanup removes the file and is safe to call twice.
func WriteTempWAV(dir string, seg Segment) (string, func(), error) {
	data, err := EncodeWAV(seg)
	if err != nil {
		return "", func() {}, err
	}
	f, err := os.CreateTemp(dir, "segment-*.wav")
	if err != nil {
		return "", func() {}, fmt.Errorf("audio: create temp wav: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("audio: write temp wav: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("audio: close temp wav: %w", err)
	}
	return path, cleanup, nil
}

// ReadWAVFile loads a mono PCM16 WAV file from disk.
func ReadWAVFile(path string) ([]int16, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: read wav: %w", err)
	}
	return ReadWAV(data)
}

// ReadWAV decodes a mono PCM16 WAV payload and returns its samples and rate.
func ReadWAV(data []byte) ([]int16, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, errors.New("audio: invalid wav header")
	}

	offset := 12
	var (
		sampleRate    int
		audioFormat   uint16
		channels      uint16
		bitsPerSample uint16
		audioData     []byte
	)

	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		chunkStart := offset + 8
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(data) {
			return nil, 0, fmt.Errorf("audio: wav chunk %q out of range", chunkID)
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, errors.New("audio: wav fmt chunk too small")
			}
			audioFormat = binary.LittleEndian.Uint16(data[chunkStart : chunkStart+2])
			channels = binary.LittleEndian.Uint16(data[chunkStart+2 : chunkStart+4])
			sampleRate = int(binary.LittleEndian.Uint32(data[chunkStart+4 : chunkStart+8]))
			bitsPerSample = binary.LittleEndian.Uint16(data[chunkStart+14 : chunkStart+16])
		case "data":
			audioData = data[chunkStart:chunkEnd]
		}
		// Chunks are word aligned.
		offset = chunkEnd
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if audioFormat != 1 {
		return nil, 0, fmt.Errorf("audio: unsupported wav format %d", audioFormat)
	}
	if channels != 1 {
		return nil, 0, fmt.Errorf("audio: expected mono wav, got %d channels", channels)
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("audio: expected 16-bit PCM, got %d", bitsPerSample)
	}
	if len(audioData) == 0 {
		return nil, 0, errors.New("audio: wav has no data chunk")
	}
	return SamplesFromPCM(audioData), sampleRate, nil
}
