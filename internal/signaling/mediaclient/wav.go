package mediaclient

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wavFile is the subset of a parsed WAV file readWAVPCM needs: mono 8kHz
// 16-bit PCM is what LocalTransport.PlayAudio encodes to G.711, so anything
// else is resampled/downmixed on the way out.
type wavFile struct {
	sampleRate    uint32
	numChannels   uint16
	bitsPerSample uint16
	pcm           []byte
}

// readWAVFile parses a RIFF/WAVE file's fmt and data chunks, adapted from
// the teacher's media.ReadWAVFile chunk walk.
func readWAVFile(path string) (*wavFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	riffID := make([]byte, 4)
	if _, err := io.ReadFull(f, riffID); err != nil || string(riffID) != "RIFF" {
		return nil, fmt.Errorf("%s: not a RIFF file", path)
	}
	var riffSize uint32
	if err := binary.Read(f, binary.LittleEndian, &riffSize); err != nil {
		return nil, fmt.Errorf("%s: read RIFF size: %w", path, err)
	}
	waveID := make([]byte, 4)
	if _, err := io.ReadFull(f, waveID); err != nil || string(waveID) != "WAVE" {
		return nil, fmt.Errorf("%s: not a WAVE file", path)
	}

	wf := &wavFile{}
	for {
		chunkID := make([]byte, 4)
		n, err := f.Read(chunkID)
		if n == 0 || err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: read chunk id: %w", path, err)
		}
		var chunkSize uint32
		if err := binary.Read(f, binary.LittleEndian, &chunkSize); err != nil {
			return nil, fmt.Errorf("%s: read chunk size: %w", path, err)
		}

		switch string(chunkID) {
		case "fmt ":
			var audioFormat uint16
			if err := binary.Read(f, binary.LittleEndian, &audioFormat); err != nil {
				return nil, fmt.Errorf("%s: read audio format: %w", path, err)
			}
			if audioFormat != 1 {
				return nil, fmt.Errorf("%s: only PCM (format 1) is supported, got %d", path, audioFormat)
			}
			if err := binary.Read(f, binary.LittleEndian, &wf.numChannels); err != nil {
				return nil, fmt.Errorf("%s: read channels: %w", path, err)
			}
			if err := binary.Read(f, binary.LittleEndian, &wf.sampleRate); err != nil {
				return nil, fmt.Errorf("%s: read sample rate: %w", path, err)
			}
			if _, err := f.Seek(6, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("%s: seek past byte rate/block align: %w", path, err)
			}
			if err := binary.Read(f, binary.LittleEndian, &wf.bitsPerSample); err != nil {
				return nil, fmt.Errorf("%s: read bits per sample: %w", path, err)
			}
			remaining := int64(chunkSize) - 16
			if remaining > 0 {
				if _, err := f.Seek(remaining, io.SeekCurrent); err != nil {
					return nil, fmt.Errorf("%s: skip extended fmt chunk: %w", path, err)
				}
			}
		case "data":
			data := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, fmt.Errorf("%s: read data chunk: %w", path, err)
			}
			wf.pcm = data
			return wf, nil
		default:
			if _, err := f.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("%s: skip chunk %q: %w", path, string(chunkID), err)
			}
		}
	}
	return nil, fmt.Errorf("%s: no data chunk found", path)
}

// downmixStereo averages left/right 16-bit samples into mono, adapted from
// the teacher's media.ResampleAudio stereo-to-mono step.
func downmixStereo(pcm []byte) []byte {
	mono := make([]byte, len(pcm)/2)
	for i := 0; i+4 <= len(pcm); i += 4 {
		left := int16(pcm[i]) | int16(pcm[i+1])<<8
		right := int16(pcm[i+2]) | int16(pcm[i+3])<<8
		mixed := int16((int32(left) + int32(right)) / 2)
		mono[i/2] = byte(mixed)
		mono[i/2+1] = byte(mixed >> 8)
	}
	return mono
}

// resampleLinear linearly interpolates 16-bit mono PCM from srcRate to
// 8000Hz, adapted from the teacher's media.ResampleAudio.
func resampleLinear(pcm []byte, srcRate uint32) []byte {
	const targetRate = 8000
	if srcRate == targetRate || srcRate == 0 {
		return pcm
	}
	ratio := float64(srcRate) / float64(targetRate)
	samples := len(pcm) / 2
	outSamples := int(float64(samples) / ratio)
	out := make([]byte, 0, outSamples*2)

	for i := 0; i < outSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		if srcIdx+1 >= samples {
			break
		}
		frac := srcPos - float64(srcIdx)
		s1 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s2 := int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		interp := int16(float64(s1)*(1-frac) + float64(s2)*frac)
		out = append(out, byte(interp), byte(interp>>8))
	}
	return out
}

// readWAVPCM loads a WAV file and returns 8kHz mono 16-bit PCM, ready for
// g711 encoding.
func readWAVPCM(path string) ([]byte, error) {
	wf, err := readWAVFile(path)
	if err != nil {
		return nil, err
	}
	if wf.bitsPerSample != 16 {
		return nil, fmt.Errorf("%s: only 16-bit PCM is supported, got %d-bit", path, wf.bitsPerSample)
	}

	pcm := wf.pcm
	switch wf.numChannels {
	case 1:
	case 2:
		pcm = downmixStereo(pcm)
	default:
		return nil, fmt.Errorf("%s: unsupported channel count %d", path, wf.numChannels)
	}

	return resampleLinear(pcm, wf.sampleRate), nil
}
