package database

// DefaultEmbeddingDim is the embedding length produced by dlib-style face encoders.
const DefaultEmbeddingDim = 128
