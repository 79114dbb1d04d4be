package media

import (
	"encoding/binary"
	"time"
)

const (
	// WAVHeaderSize は RIFF/WAVE ヘッダの固定長です。
	WAVHeaderSize = 44
	// SpeechSampleRate は音声合成 API が返す PCM のサンプルレートです。
	SpeechSampleRate = 24000
	// SpeechChannels はモノラル。
	SpeechChannels = 1
	// SpeechBitsPerSample は 16bit PCM。
	SpeechBitsPerSample = 16

	WAVMimeType = "audio/wav"
)

// WAVHeader は PCM データ長に対応する 44 バイトの RIFF/WAVE ヘッダを作ります。
func WAVHeader(dataLen, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	h := make([]byte, WAVHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h
}

// WrapPCM は 24kHz モノラル 16bit の生 PCM に WAV ヘッダを付けて返すのだ。
func WrapPCM(pcm []byte) []byte {
	out := make([]byte, 0, WAVHeaderSize+len(pcm))
	out = append(out, WAVHeader(len(pcm), SpeechSampleRate, SpeechChannels, SpeechBitsPerSample)...)
	return append(out, pcm...)
}

// WAVDuration は RIFF/WAVE ヘッダから再生時間を求めます。ヘッダが読めなければ false。
func WAVDuration(b []byte) (time.Duration, bool) {
	if len(b) < WAVHeaderSize || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return 0, false
	}
	byteRate := binary.LittleEndian.Uint32(b[28:32])
	dataLen := binary.LittleEndian.Uint32(b[40:44])
	if byteRate == 0 {
		return 0, false
	}
	return time.Duration(uint64(dataLen) * uint64(time.Second) / uint64(byteRate)), true
}
