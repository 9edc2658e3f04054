// Command s3go-demo exercises a handful of s3go.Client operations
// against a single bucket, for manual smoke-testing against a real or
// self-hosted S3-compatible endpoint. Not part of the core pipeline;
// logging lives only here, never in internal/s3core.
package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nimbusdata/s3go"
)

func main() {
	endpoint := flag.String("endpoint", "play.min.io", "S3 endpoint host[:port]")
	accessKey := flag.String("access-key", "", "access key ID")
	secretKey := flag.String("secret-key", "", "secret access key")
	bucket := flag.String("bucket", "", "bucket name")
	key := flag.String("key", "s3go-demo/hello.txt", "object key")
	secure := flag.Bool("secure", true, "use HTTPS")
	flag.Parse()

	log := logrus.WithFields(logrus.Fields{"endpoint": *endpoint, "bucket": *bucket})

	if *accessKey == "" || *secretKey == "" || *bucket == "" {
		log.Fatal("access-key, secret-key, and bucket are required")
	}

	client, err := s3go.NewClient(*endpoint, *accessKey, *secretKey, *secure,
		s3go.WithAppInfo("s3go-demo", "v0.1.0"))
	if err != nil {
		log.WithError(err).Fatal("failed to construct client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, client, *bucket, *key, log); err != nil {
		log.WithError(err).Fatal("demo run failed")
	}
}

func run(ctx context.Context, client *s3go.Client, bucket, key string, log *logrus.Entry) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		log.Info("bucket does not exist, creating it")
		if err := client.MakeBucket(ctx, bucket, ""); err != nil {
			return err
		}
	}

	payload := []byte("hello from s3go\n")
	etag, err := client.PutObject(ctx, bucket, key, bytes.NewReader(payload), int64(len(payload)), s3go.PutObjectOptions{
		ContentType: "text/plain",
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"key": key, "etag": etag}).Info("uploaded object")

	obj, err := client.GetObject(ctx, bucket, key, s3go.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"key": key, "size": obj.Stat.Size}).Info("downloaded object")
	os.Stdout.Write(body)

	url, err := client.PresignedGetObject(ctx, bucket, key, 15*time.Minute)
	if err != nil {
		return err
	}
	log.WithField("url", url).Info("presigned GET URL")

	return nil
}
