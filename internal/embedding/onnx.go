//go:build onnx

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig locates the model artifacts for the local backend.
type ONNXConfig struct {
	ModelPath     string // sentence-transformer ONNX export
	TokenizerPath string // HuggingFace tokenizer.json
	LibraryPath   string // libonnxruntime shared library
	Dimensions    int    // hidden size, default 384 (all-MiniLM-L6-v2)
}

// ONNXBackend runs a local sentence-transformer model through ONNX Runtime.
// Build with -tags onnx; without the tag NewONNXBackend returns an error.
type ONNXBackend struct {
	session    *ort.DynamicAdvancedSession
	vocab      map[string]int64
	dimensions int
}

const onnxSeqLen = 128

// BERT special token ids shared by the MiniLM family.
const (
	onnxUNK int64 = 100
	onnxCLS int64 = 101
	onnxSEP int64 = 102
)

// NewONNXBackend loads the model and tokenizer vocabulary.
func NewONNXBackend(cfg ONNXConfig) (Backend, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("onnx backend: model_path and tokenizer_path are required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnx backend: initialize runtime: %w", err)
	}

	vocab, err := loadVocab(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx backend: load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx backend: create session: %w", err)
	}

	return &ONNXBackend{session: session, vocab: vocab, dimensions: cfg.Dimensions}, nil
}

// Embed tokenizes text, runs the model, and mean-pools the hidden states
// into a normalized vector.
func (b *ONNXBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputIDs := make([]int64, onnxSeqLen)
	attention := make([]int64, onnxSeqLen)
	tokenTypes := make([]int64, onnxSeqLen)

	tokens := b.tokenize(text)
	if len(tokens) > onnxSeqLen-2 {
		tokens = tokens[:onnxSeqLen-2]
	}
	inputIDs[0] = onnxCLS
	attention[0] = 1
	for i, id := range tokens {
		inputIDs[i+1] = id
		attention[i+1] = 1
	}
	inputIDs[len(tokens)+1] = onnxSEP
	attention[len(tokens)+1] = 1

	shape := ort.NewShape(1, onnxSeqLen)
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx backend: input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, attention)
	if err != nil {
		return nil, fmt.Errorf("onnx backend: attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor(shape, tokenTypes)
	if err != nil {
		return nil, fmt.Errorf("onnx backend: token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := b.session.Run([]ort.Value{idsTensor, maskTensor, typeTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx backend: inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx backend: unexpected output tensor type")
	}
	return b.meanPool(hidden, attention)
}

// meanPool averages hidden states over attended positions.
func (b *ONNXBackend) meanPool(hidden *ort.Tensor[float32], attention []int64) ([]float32, error) {
	data := hidden.GetData()
	shape := hidden.GetShape()
	if len(shape) != 3 || shape[2] != int64(b.dimensions) {
		return nil, fmt.Errorf("onnx backend: unexpected output shape %v", shape)
	}

	vec := make([]float32, b.dimensions)
	var attended float32
	for i := 0; i < int(shape[1]); i++ {
		if attention[i] == 0 {
			continue
		}
		attended++
		offset := i * b.dimensions
		for j := 0; j < b.dimensions; j++ {
			vec[j] += data[offset+j]
		}
	}
	if attended == 0 {
		return nil, fmt.Errorf("onnx backend: no attended tokens")
	}
	for j := range vec {
		vec[j] /= attended
	}
	return Normalize(vec), nil
}

// Dimensions returns the hidden size.
func (b *ONNXBackend) Dimensions() int {
	return b.dimensions
}

// Close releases the ONNX session.
func (b *ONNXBackend) Close() error {
	if b.session != nil {
		return b.session.Destroy()
	}
	return nil
}

func loadVocab(path string) (map[string]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tk struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tk); err != nil {
		return nil, err
	}
	if len(tk.Model.Vocab) == 0 {
		return nil, fmt.Errorf("empty vocabulary in %s", path)
	}
	return tk.Model.Vocab, nil
}

// tokenize lowercases, splits on whitespace, and applies greedy WordPiece
// with the ## continuation prefix.
func (b *ONNXBackend) tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if word == "" {
			continue
		}
		if id, ok := b.vocab[word]; ok {
			ids = append(ids, id)
			continue
		}
		ids = append(ids, b.wordPiece(word)...)
	}
	return ids
}

func (b *ONNXBackend) wordPiece(word string) []int64 {
	var ids []int64
	start := 0
	for start < len(word) {
		matched := false
		for end := len(word); end > start; end-- {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := b.vocab[piece]; ok {
				ids = append(ids, id)
				start = end
				matched = true
				break
			}
		}
		if !matched {
			ids = append(ids, onnxUNK)
			start++
		}
	}
	return ids
}
