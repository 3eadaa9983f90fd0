package whisper

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tosone/minimp3"

	"github.com/MrWong99/framelens/pkg/provider/stt"
)

// whisperSampleRate is the only input rate whisper.cpp accepts.
const whisperSampleRate = 16000

// decodeAudio turns an upload into 16 kHz mono float32 samples in [-1, 1].
// WAV and MP3 are decoded in-process; other containers need ffmpeg and are
// rejected with stt.ErrUnsupportedFormat.
func decodeAudio(a stt.Audio) ([]float32, error) {
	switch a.Ext() {
	case ".wav":
		return decodeWAV(a.Data)
	case ".mp3":
		return decodeMP3(a.Data)
	default:
		return nil, fmt.Errorf("%w: %s needs the whisper-server provider", stt.ErrUnsupportedFormat, a.Ext())
	}
}

func decodeWAV(data []byte) ([]float32, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", stt.ErrUnsupportedFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: decode wav: %v", stt.ErrUnsupportedFormat, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, stt.ErrEmptyAudio
	}
	if dec.SampleRate == 0 || dec.NumChans == 0 {
		return nil, fmt.Errorf("%w: wav header has no sample rate or channels", stt.ErrUnsupportedFormat)
	}
	mono := intBufferToMono(buf, int(dec.NumChans), int(dec.BitDepth))
	return resample(mono, int(dec.SampleRate), whisperSampleRate), nil
}

// intBufferToMono scales interleaved integer samples of the given bit depth to
// [-1, 1] and averages the channels of each frame.
func intBufferToMono(buf *audio.IntBuffer, channels, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned.
		scale = 128
	}

	frames := len(buf.Data) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			v := float64(buf.Data[i*channels+ch])
			if bitDepth == 8 {
				v -= 128
			}
			sum += v / scale
		}
		mono[i] = float32(clamp(sum / float64(channels)))
	}
	return mono
}

func decodeMP3(data []byte) ([]float32, error) {
	dec, pcm, err := minimp3.DecodeFull(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode mp3: %v", stt.ErrUnsupportedFormat, err)
	}
	if dec == nil || dec.SampleRate == 0 || dec.Channels == 0 {
		return nil, fmt.Errorf("%w: mp3 stream has no audio frames", stt.ErrUnsupportedFormat)
	}
	if len(pcm) < 2 {
		return nil, stt.ErrEmptyAudio
	}
	return resample(pcmToFloat32Mono(pcm, dec.Channels), dec.SampleRate, whisperSampleRate), nil
}

// pcmToFloat32Mono down-mixes multi-channel 16-bit little-endian PCM to mono
// float32 by averaging all channels per frame.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// resample converts mono samples from inRate to outRate with linear
// interpolation, which is adequate for speech.
func resample(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || inRate <= 0 || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outLen)
	for i := range outLen {
		pos := float64(i) / ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		t := float32(pos - float64(j))
		out[i] = (1-t)*in[j] + t*in[j+1]
	}
	return out
}

// samplesDuration returns the playback length of 16 kHz samples.
func samplesDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / whisperSampleRate
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

var errNoSamples = errors.New("whisper: decoded audio contains no samples")
