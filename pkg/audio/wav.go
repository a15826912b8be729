package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// EncodeWAV wraps 16-bit PCM data in a minimal RIFF/WAVE container. Providers
// that accept file uploads (rather than raw streams) consume this.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	dataSize := len(pcm)
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))            // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                            // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

// ErrNotWAV is returned when a payload lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE payload")

// DecodeWAV extracts 16-bit PCM from a RIFF/WAVE container. Only PCM format 1
// is supported; compressed containers return an error.
func DecodeWAV(wav []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, 0, ErrNotWAV
	}

	format := binary.LittleEndian.Uint16(wav[20:22])
	if format != 1 {
		return nil, 0, 0, fmt.Errorf("audio: unsupported WAV format %d (PCM only)", format)
	}
	channels = int(binary.LittleEndian.Uint16(wav[22:24]))
	sampleRate = int(binary.LittleEndian.Uint32(wav[24:28]))
	bits := binary.LittleEndian.Uint16(wav[34:36])
	if bits != 16 {
		return nil, 0, 0, fmt.Errorf("audio: unsupported bit depth %d (16-bit only)", bits)
	}

	// Walk chunks to find "data"; "fmt " is not always immediately adjacent.
	off := 12
	for off+8 <= len(wav) {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8
		if id == "data" {
			end := body + size
			if end > len(wav) {
				end = len(wav)
			}
			return wav[body:end], sampleRate, channels, nil
		}
		off = body + size
		if size%2 == 1 {
			off++ // chunks are word-aligned
		}
	}
	return nil, 0, 0, fmt.Errorf("audio: WAV data chunk not found")
}

// SilencePCM returns ms milliseconds of 16-bit mono silence at the given rate.
func SilencePCM(ms, sampleRate int) []byte {
	return make([]byte, sampleRate*ms/1000*2)
}
