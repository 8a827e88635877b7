package storage

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ErrStorageUnavailable matches every categorized S3 failure
var ErrStorageUnavailable = errors.New("storage unavailable")

// S3 error categories for clear error messages
const (
	S3CategoryAuth    = "authentication"
	S3CategoryNetwork = "network"
	S3CategoryStorage = "storage"
)

// S3 operations for error context
const (
	S3OpConnect     = "connect"
	S3OpListBuckets = "list_buckets"
	S3OpListObjects = "list_objects"
)

// S3Error wraps S3-specific failures with categorization
type S3Error struct {
	Category string // "authentication", "network", or "storage"
	Op       string // "connect", "list_buckets", or "list_objects"
	Err      error
}

func (e *S3Error) Error() string {
	return fmt.Sprintf("S3 %s error during %s: %v", e.Category, e.Op, e.Err)
}

func (e *S3Error) Unwrap() error {
	return e.Err
}

// Is matches ErrStorageUnavailable
func (e *S3Error) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func newS3Error(category, op string, err error) *S3Error {
	return &S3Error{Category: category, Op: op, Err: err}
}

// CategorizeS3Error examines an error and returns an appropriately categorized
// S3Error. Authentication failures carry a provider hint derived from endpoint.
func CategorizeS3Error(op, endpoint string, err error) *S3Error {
	if err == nil {
		return nil
	}

	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return categorizeMinioError(op, endpoint, minioErr)
	}

	errStr := err.Error()
	if strings.Contains(errStr, "AccessDenied") ||
		strings.Contains(errStr, "InvalidAccessKeyId") ||
		strings.Contains(errStr, "SignatureDoesNotMatch") ||
		strings.Contains(errStr, "ExpiredToken") {
		return newS3Error(S3CategoryAuth, op, fmt.Errorf("authentication failed: %v%s", err, providerAuthHint(endpoint)))
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newS3Error(S3CategoryNetwork, op, fmt.Errorf("network error: cannot resolve S3 endpoint hostname"))
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return newS3Error(S3CategoryNetwork, op, fmt.Errorf("network timeout: unable to reach S3 endpoint"))
		}
		return newS3Error(S3CategoryNetwork, op, fmt.Errorf("network error: unable to reach S3 endpoint"))
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return newS3Error(S3CategoryNetwork, op, fmt.Errorf("network error: unable to reach S3 endpoint"))
	}

	if strings.Contains(errStr, "NoSuchBucket") {
		return newS3Error(S3CategoryStorage, op, fmt.Errorf("bucket not found: verify bucket exists and name is correct"))
	}

	return newS3Error(S3CategoryStorage, op, err)
}

func categorizeMinioError(op, endpoint string, minioErr minio.ErrorResponse) *S3Error {
	switch minioErr.Code {
	case "AccessDenied":
		return newS3Error(S3CategoryAuth, op, fmt.Errorf("access denied: credentials lack list permissions%s", providerAuthHint(endpoint)))
	case "InvalidAccessKeyId":
		return newS3Error(S3CategoryAuth, op, fmt.Errorf("invalid access key: verify credentials are correct"))
	case "SignatureDoesNotMatch":
		return newS3Error(S3CategoryAuth, op, fmt.Errorf("signature mismatch: verify secret key is correct"))
	case "ExpiredToken":
		return newS3Error(S3CategoryAuth, op, fmt.Errorf("token expired: refresh credentials"))
	case "NoSuchBucket":
		return newS3Error(S3CategoryStorage, op, fmt.Errorf("bucket not found: verify bucket exists and name is correct"))
	case "InternalError", "ServiceUnavailable":
		return newS3Error(S3CategoryStorage, op, fmt.Errorf("S3 service unavailable: %s", minioErr.Message))
	default:
		return newS3Error(S3CategoryStorage, op, fmt.Errorf("%s: %s", minioErr.Code, minioErr.Message))
	}
}

// providerAuthHint returns provider-specific authentication hints based on the endpoint
func providerAuthHint(endpoint string) string {
	endpointLower := strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpointLower, "supabase."):
		return " (Supabase: use the S3 access keys from Project Settings > Storage, not the API key)"
	case strings.Contains(endpointLower, "amazonaws.com"):
		return " (AWS S3: check IAM policy has s3:ListAllMyBuckets and s3:ListBucket permissions)"
	case strings.Contains(endpointLower, "minio") || strings.Contains(endpointLower, ":9000"):
		return " (MinIO: verify access key and secret key are correct)"
	}
	return ""
}
