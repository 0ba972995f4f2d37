package keys

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ssmAPI is the subset of *ssm.Client used by SSMBackend.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, in *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
}

// SSMBackend stores secrets as SecureString parameters in AWS Systems Manager
// Parameter Store under "<prefix>/<name>".
type SSMBackend struct {
	api    ssmAPI
	prefix string
}

func NewSSMBackend(api ssmAPI, prefix string) (*SSMBackend, error) {
	if api == nil {
		return nil, errors.New("keys: ssm api must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("keys: ssm parameter prefix must not be empty")
	}
	return &SSMBackend{api: api, prefix: prefix}, nil
}

func (b *SSMBackend) parameterName(name string) string {
	return b.prefix + "/" + name
}

func (b *SSMBackend) Get(ctx context.Context, name string) (string, error) {
	out, err := b.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(b.parameterName(name)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return "", ErrSecretNotFound
		}
		return "", unavailable("ssm get", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", ErrSecretNotFound
	}
	return *out.Parameter.Value, nil
}

func (b *SSMBackend) Set(ctx context.Context, name, value string) error {
	_, err := b.api.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(b.parameterName(name)),
		Value:     aws.String(value),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return unavailable("ssm put", name, err)
	}
	return nil
}

func (b *SSMBackend) Delete(ctx context.Context, name string) error {
	_, err := b.api.DeleteParameter(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(b.parameterName(name)),
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return nil
		}
		return unavailable("ssm delete", name, err)
	}
	return nil
}
