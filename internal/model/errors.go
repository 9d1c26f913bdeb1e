package model

import (
	"errors"

	"github.com/Brownie44l1/dog-breed-api/internal/preprocess"
)

var (
	ErrMissingLabels  = errors.New("missing labels file")
	ErrMissingWeights = errors.New("missing model file")
	ErrWrongFormat    = preprocess.ErrWrongFormat
	ErrInference      = errors.New("inference failed")
)
