package mirror

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	sigV4Algorithm = "AWS4-HMAC-SHA256"
	sigV4Service   = "s3"
)

// Uploader puts one local file under an object key.
type Uploader interface {
	PutFile(ctx context.Context, key, localPath string) error
}

// S3Client uploads with path-style PUTs signed with SigV4. It speaks to any
// S3-compatible store (R2, MinIO, S3 itself).
type S3Client struct {
	endpoint        string
	bucket          string
	region          string
	accessKeyID     string
	secretAccessKey string
	httpClient      *http.Client
	now             func() time.Time
}

type S3Config struct {
	Endpoint        string
	Bucket          string
	Region          string // "auto" when empty
	AccessKeyID     string
	SecretAccessKey string
}

func NewS3Client(cfg S3Config) (*S3Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	ak := strings.TrimSpace(cfg.AccessKeyID)
	sk := strings.TrimSpace(cfg.SecretAccessKey)
	if endpoint == "" || bucket == "" || ak == "" || sk == "" {
		return nil, fmt.Errorf("endpoint/bucket/access key/secret key are required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint: %s", endpoint)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "auto"
	}
	return &S3Client{
		endpoint:        strings.TrimRight(u.String(), "/"),
		bucket:          bucket,
		region:          region,
		accessKeyID:     ak,
		secretAccessKey: sk,
		httpClient:      &http.Client{Timeout: 2 * time.Minute},
		now:             time.Now,
	}, nil
}

func (c *S3Client) PutFile(ctx context.Context, key, localPath string) error {
	key = normalizeKey(key)
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("path is directory: %s", localPath)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	payloadHash := hex.EncodeToString(h.Sum(nil))
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	canonicalURI := "/" + c.bucket + "/" + escapePath(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+canonicalURI, f)
	if err != nil {
		return err
	}
	req.ContentLength = st.Size()
	req.Header.Set("Content-Type", "application/octet-stream")
	c.sign(req, canonicalURI, payloadHash)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return fmt.Errorf("put %s: status=%d body=%s", key, resp.StatusCode, strings.TrimSpace(string(body)))
}

func (c *S3Client) sign(req *http.Request, canonicalURI, payloadHash string) {
	now := c.now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	host := req.URL.Host

	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("x-amz-date", amzDate)

	const signedHeaders = "host;x-amz-content-sha256;x-amz-date"
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI,
		"",
		"host:" + host + "\nx-amz-content-sha256:" + payloadHash + "\nx-amz-date:" + amzDate + "\n",
		signedHeaders,
		payloadHash,
	}, "\n")
	scope := dateStamp + "/" + c.region + "/" + sigV4Service + "/aws4_request"
	sum := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{sigV4Algorithm, amzDate, scope, hex.EncodeToString(sum[:])}, "\n")

	key := hmacSHA256([]byte("AWS4"+c.secretAccessKey), []byte(dateStamp))
	key = hmacSHA256(key, []byte(c.region))
	key = hmacSHA256(key, []byte(sigV4Service))
	key = hmacSHA256(key, []byte("aws4_request"))
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigV4Algorithm, c.accessKeyID, scope, signedHeaders, signature))
}

func normalizeKey(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(strings.ReplaceAll(key, "\\", "/")), "/")
	if key == "" {
		return ""
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "." || clean == "" {
		return ""
	}
	return clean
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(data)
	return h.Sum(nil)
}
