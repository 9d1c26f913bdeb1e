package model

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/dog-breed-api/internal/preprocess"
)

type fakeNetwork struct {
	scores []float32
	shape  []int64
	err    error
	calls  int
	closed bool
}

func (f *fakeNetwork) Forward(input *preprocess.Tensor) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func (f *fakeNetwork) InputShape() []int64 {
	if f.shape != nil {
		return f.shape
	}
	return []int64{1, 3, 227, 227}
}

func (f *fakeNetwork) Close() error {
	f.closed = true
	return nil
}

func loaderFor(net Network) NetworkLoader {
	return func(string, Config) (Network, error) {
		return net, nil
	}
}

func testLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("breed-%03d", i)
	}
	return labels
}

// testConfig writes a label file and a placeholder weights file into a temp dir.
func testConfig(t *testing.T, labels []string) Config {
	t.Helper()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.LabelsPath = filepath.Join(dir, "dogs")
	cfg.WeightsPath = filepath.Join(dir, "mobilenet_model.onnx")

	if labels != nil {
		require.NoError(t, os.WriteFile(cfg.LabelsPath, []byte(strings.Join(labels, "\n")+"\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(cfg.WeightsPath, []byte("onnx"), 0o644))
	return cfg
}

func writeImage(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}

	path := filepath.Join(t.TempDir(), "dog.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func writeText(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dog.jpg")
	require.NoError(t, os.WriteFile(path, []byte("just some text renamed to jpg"), 0o644))
	return path
}

func scoresWithMax(n, idx int) []float32 {
	scores := make([]float32, n)
	for i := range scores {
		scores[i] = float32(i%7) * 0.1
	}
	scores[idx] = 10
	return scores
}

func TestNew(t *testing.T) {
	t.Run("loads labels and network", func(t *testing.T) {
		net := &fakeNetwork{}
		cfg := testConfig(t, testLabels(DefaultNumClasses))

		c, err := New(cfg, WithNetworkLoader(loaderFor(net)))

		require.NoError(t, err)
		assert.Equal(t, StatusOK, c.Status())
		assert.NoError(t, c.Err())
		assert.Len(t, c.Labels(), DefaultNumClasses)
	})

	t.Run("missing labels", func(t *testing.T) {
		loaded := false
		cfg := testConfig(t, nil)

		c, err := New(cfg, WithNetworkLoader(func(string, Config) (Network, error) {
			loaded = true
			return &fakeNetwork{}, nil
		}))

		require.NoError(t, err)
		assert.Equal(t, StatusMissingLabels, c.Status())
		assert.ErrorIs(t, c.Err(), ErrMissingLabels)
		assert.False(t, loaded, "network must not load without labels")
	})

	t.Run("missing weights", func(t *testing.T) {
		cfg := testConfig(t, testLabels(DefaultNumClasses))
		require.NoError(t, os.Remove(cfg.WeightsPath))

		c, err := New(cfg, WithNetworkLoader(loaderFor(&fakeNetwork{})))

		require.NoError(t, err)
		assert.Equal(t, StatusMissingWeights, c.Status())
		assert.ErrorIs(t, c.Err(), ErrMissingWeights)
	})

	t.Run("loader failure is returned", func(t *testing.T) {
		cfg := testConfig(t, testLabels(DefaultNumClasses))

		c, err := New(cfg, WithNetworkLoader(func(string, Config) (Network, error) {
			return nil, errors.New("corrupt graph")
		}))

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "corrupt graph")
		assert.Nil(t, c)
	})

	t.Run("labels do not leak between instances", func(t *testing.T) {
		a, err := New(testConfig(t, []string{"a", "b"}), WithNetworkLoader(loaderFor(&fakeNetwork{})))
		require.NoError(t, err)
		b, err := New(testConfig(t, []string{"x", "y", "z"}), WithNetworkLoader(loaderFor(&fakeNetwork{})))
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "b"}, a.Labels())
		assert.Equal(t, []string{"x", "y", "z"}, b.Labels())
	})
}

func TestClassifier_Predict(t *testing.T) {
	t.Run("returns a label from the vocabulary", func(t *testing.T) {
		labels := testLabels(DefaultNumClasses)
		net := &fakeNetwork{scores: scoresWithMax(DefaultNumClasses, 42)}
		c, err := New(testConfig(t, labels), WithNetworkLoader(loaderFor(net)))
		require.NoError(t, err)

		pred, err := c.Predict(writeImage(t, 320, 240))

		require.NoError(t, err)
		assert.Equal(t, "breed-042", pred.Label)
		assert.Equal(t, 42, pred.Index)
		assert.Equal(t, float32(10), pred.Score)
		assert.Contains(t, labels, pred.Label)
		assert.Equal(t, StatusOK, c.Status())
	})

	t.Run("missing labels short-circuits", func(t *testing.T) {
		net := &fakeNetwork{scores: scoresWithMax(DefaultNumClasses, 0)}
		c, err := New(testConfig(t, nil), WithNetworkLoader(loaderFor(net)))
		require.NoError(t, err)

		for _, path := range []string{writeImage(t, 64, 64), writeText(t)} {
			pred, err := c.Predict(path)

			assert.ErrorIs(t, err, ErrMissingLabels)
			assert.Equal(t, Prediction{}, pred)
			assert.Equal(t, StatusMissingLabels, c.Status())
		}
		assert.Zero(t, net.calls)
	})

	t.Run("missing weights short-circuits", func(t *testing.T) {
		cfg := testConfig(t, testLabels(DefaultNumClasses))
		require.NoError(t, os.Remove(cfg.WeightsPath))
		c, err := New(cfg, WithNetworkLoader(loaderFor(&fakeNetwork{})))
		require.NoError(t, err)

		for _, path := range []string{writeText(t), writeImage(t, 64, 64)} {
			_, err := c.Predict(path)

			assert.ErrorIs(t, err, ErrMissingWeights)
			assert.Equal(t, StatusMissingWeights, c.Status())
		}
	})

	t.Run("wrong format is transient", func(t *testing.T) {
		net := &fakeNetwork{scores: scoresWithMax(DefaultNumClasses, 7)}
		c, err := New(testConfig(t, testLabels(DefaultNumClasses)), WithNetworkLoader(loaderFor(net)))
		require.NoError(t, err)

		pred, err := c.Predict(writeText(t))

		assert.ErrorIs(t, err, ErrWrongFormat)
		assert.Equal(t, Prediction{}, pred)
		assert.Equal(t, StatusWrongFormat, c.Status())
		assert.Zero(t, net.calls)

		pred, err = c.Predict(writeImage(t, 100, 300))

		require.NoError(t, err)
		assert.Equal(t, "breed-007", pred.Label)
		assert.Equal(t, StatusOK, c.Status())
	})

	t.Run("same image gives same label", func(t *testing.T) {
		net := &fakeNetwork{scores: scoresWithMax(DefaultNumClasses, 99)}
		c, err := New(testConfig(t, testLabels(DefaultNumClasses)), WithNetworkLoader(loaderFor(net)))
		require.NoError(t, err)
		path := writeImage(t, 500, 400)

		first, err := c.Predict(path)
		require.NoError(t, err)
		second, err := c.Predict(path)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("ties go to the lowest index", func(t *testing.T) {
		scores := make([]float32, DefaultNumClasses)
		scores[5] = 3
		scores[17] = 3
		scores[120] = 3
		net := &fakeNetwork{scores: scores}
		c, err := New(testConfig(t, testLabels(DefaultNumClasses)), WithNetworkLoader(loaderFor(net)))
		require.NoError(t, err)

		pred, err := c.Predict(writeImage(t, 64, 64))

		require.NoError(t, err)
		assert.Equal(t, 5, pred.Index)
		assert.Equal(t, "breed-005", pred.Label)
	})

	t.Run("forward failure propagates", func(t *testing.T) {
		net := &fakeNetwork{err: errors.New("shape mismatch in node 12")}
		c, err := New(testConfig(t, testLabels(DefaultNumClasses)), WithNetworkLoader(loaderFor(net)))
		require.NoError(t, err)

		_, err = c.Predict(writeImage(t, 64, 64))

		assert.ErrorIs(t, err, ErrInference)
		assert.NotErrorIs(t, err, ErrWrongFormat)
		assert.Equal(t, StatusOK, c.Status())
	})

	t.Run("short vocabulary fails lookup", func(t *testing.T) {
		net := &fakeNetwork{scores: scoresWithMax(DefaultNumClasses, 130)}
		c, err := New(testConfig(t, testLabels(100)), WithNetworkLoader(loaderFor(net)))
		require.NoError(t, err)

		_, err = c.Predict(writeImage(t, 64, 64))

		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("input shape the network cannot take is wrong format", func(t *testing.T) {
		net := &fakeNetwork{scores: scoresWithMax(DefaultNumClasses, 1), shape: []int64{1, 3, 224, 224}}
		c, err := New(testConfig(t, testLabels(DefaultNumClasses)), WithNetworkLoader(loaderFor(net)))
		require.NoError(t, err)

		_, err = c.Predict(writeImage(t, 64, 64))

		assert.ErrorIs(t, err, ErrWrongFormat)
		assert.Equal(t, StatusWrongFormat, c.Status())
		assert.Zero(t, net.calls)
	})

	t.Run("dynamic batch dimension is accepted", func(t *testing.T) {
		net := &fakeNetwork{scores: scoresWithMax(DefaultNumClasses, 3), shape: []int64{-1, 3, 227, 227}}
		c, err := New(testConfig(t, testLabels(DefaultNumClasses)), WithNetworkLoader(loaderFor(net)))
		require.NoError(t, err)

		pred, err := c.Predict(writeImage(t, 64, 64))

		require.NoError(t, err)
		assert.Equal(t, 3, pred.Index)
	})
}

func TestClassifier_Close(t *testing.T) {
	net := &fakeNetwork{}
	c, err := New(testConfig(t, testLabels(3)), WithNetworkLoader(loaderFor(net)))
	require.NoError(t, err)

	assert.NoError(t, c.Close())
	assert.True(t, net.closed)

	missing, err := New(testConfig(t, nil))
	require.NoError(t, err)
	assert.NoError(t, missing.Close())
}

func TestClassifier_String(t *testing.T) {
	c, err := New(testConfig(t, nil))
	require.NoError(t, err)

	assert.Contains(t, c.String(), "DogClassifier")
	assert.Contains(t, c.String(), "missing_labels")
}

func TestArgmax(t *testing.T) {
	tests := []struct {
		name   string
		scores []float32
		idx    int
	}{
		{"single", []float32{0.3}, 0},
		{"last", []float32{0.1, 0.2, 0.9}, 2},
		{"negative", []float32{-5, -1, -3}, 1},
		{"tie", []float32{1, 4, 4, 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, _ := argmax(tt.scores)
			assert.Equal(t, tt.idx, idx)
		})
	}
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "missing_labels", StatusMissingLabels.String())
	assert.Equal(t, "missing_weights", StatusMissingWeights.String())
	assert.Equal(t, "wrong_format", StatusWrongFormat.String())

	assert.NoError(t, StatusOK.Err())
	assert.True(t, StatusMissingLabels.Absorbing())
	assert.True(t, StatusMissingWeights.Absorbing())
	assert.False(t, StatusWrongFormat.Absorbing())
	assert.False(t, StatusOK.Absorbing())
}
