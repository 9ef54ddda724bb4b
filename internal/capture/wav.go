package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// EncodeWAV wraps mono 16-bit PCM samples in a RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(s))
	}
	return buf
}

// ErrNotWAV is returned by DecodeWAV for payloads that are not the mono
// 16-bit PCM container EncodeWAV produces.
var ErrNotWAV = errors.New("capture: not a PCM WAV payload")

// DecodeWAV extracts the raw PCM bytes and sample rate from a container
// produced by EncodeWAV. It only understands the plain 44-byte header layout.
func DecodeWAV(wav []byte) (pcm []byte, sampleRate int, err error) {
	if len(wav) < 44 || !bytes.Equal(wav[0:4], []byte("RIFF")) ||
		!bytes.Equal(wav[8:12], []byte("WAVE")) || !bytes.Equal(wav[36:40], []byte("data")) {
		return nil, 0, ErrNotWAV
	}
	rate := int(binary.LittleEndian.Uint32(wav[24:28]))
	dataLen := int(binary.LittleEndian.Uint32(wav[40:44]))
	if rate <= 0 || dataLen > len(wav)-44 {
		return nil, 0, ErrNotWAV
	}
	return wav[44 : 44+dataLen], rate, nil
}

// DecodePCM16LE converts little-endian PCM bytes to int16 samples.
func DecodePCM16LE(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return out
}
