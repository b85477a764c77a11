package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"voxlayer.ai/internal/persistence/mirror"
)

// buildMirror returns nil unless VL_MIRROR is set.
func buildMirror(dataDir string, logger *log.Logger) (*mirror.Mirror, error) {
	if !envBool("VL_MIRROR", false) {
		return nil, nil
	}
	cfg := mirror.S3Config{
		Endpoint:        os.Getenv("VL_MIRROR_ENDPOINT"),
		Bucket:          os.Getenv("VL_MIRROR_BUCKET"),
		Region:          os.Getenv("VL_MIRROR_REGION"),
		AccessKeyID:     os.Getenv("VL_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("VL_MIRROR_SECRET_ACCESS_KEY"),
	}
	client, err := mirror.NewS3Client(cfg)
	if err != nil {
		return nil, fmt.Errorf("VL_MIRROR=true: %w", err)
	}
	return mirror.New(client, dataDir, strings.TrimSpace(os.Getenv("VL_MIRROR_PREFIX")), mirror.Options{
		Workers: envInt("VL_MIRROR_WORKERS", 2),
		Logger:  logger,
	}), nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
