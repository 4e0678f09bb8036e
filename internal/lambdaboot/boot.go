// Package lambdaboot provides the Lambda cold-start helpers: AWS config, the
// S3 artifact store and the SSM-held model credential.
package lambdaboot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/tal-prompt-studio/internal/artifacts"
)

// AWSClients holds the core AWS SDK clients used by the Lambda.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS(ctx context.Context) AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3Store creates the S3 artifact store. Fatals if bucket is empty.
func InitS3Store(cfg aws.Config, bucket, prefix string) *artifacts.S3Store {
	if bucket == "" {
		log.Fatal().Msg("storage.bucket is required for the s3 backend")
	}
	return artifacts.NewS3Store(s3.NewFromConfig(cfg), bucket, prefix)
}

// ParameterGetter is the subset of *ssm.Client used to read the credential.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadGeminiKey returns current when it is already set, otherwise the
// decrypted value of the SSM parameter param.
func LoadGeminiKey(ctx context.Context, client ParameterGetter, current, param string) (string, error) {
	if current != "" {
		return current, nil
	}
	if param == "" {
		return "", errors.New("no SSM parameter configured for the Gemini API key")
	}

	ssmStart := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &param,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read API key from SSM %s: %w", param, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil || *result.Parameter.Value == "" {
		return "", fmt.Errorf("SSM parameter %s is empty", param)
	}
	log.Debug().Str("param", param).Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
	return *result.Parameter.Value, nil
}
