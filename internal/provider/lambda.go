package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// LambdaFunction is the provider descriptor for one deployed function
// version.
type LambdaFunction struct {
	FunctionName string
	Version      string
	FunctionARN  string
}

type lambdaAPI interface {
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
}

// LambdaClient checks which deployed function versions still exist.
type LambdaClient struct {
	api lambdaAPI
}

func NewLambdaClient(cfg aws.Config) *LambdaClient {
	return &LambdaClient{api: lambda.NewFromConfig(cfg)}
}

// GetFunctionVersion returns the function version if it still exists, or
// nil when the backend no longer knows it.
func (c *LambdaClient) GetFunctionVersion(ctx context.Context, functionName, version string) (*LambdaFunction, error) {
	in := &lambda.GetFunctionInput{FunctionName: aws.String(functionName)}
	if version != "" {
		in.Qualifier = aws.String(version)
	}

	out, err := c.api.GetFunction(ctx, in)
	if err != nil {
		var rnf *lambdatypes.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return nil, nil
		}
		return nil, fmt.Errorf("get function %s:%s: %w", functionName, version, err)
	}

	return &LambdaFunction{
		FunctionName: aws.ToString(out.Configuration.FunctionName),
		Version:      aws.ToString(out.Configuration.Version),
		FunctionARN:  aws.ToString(out.Configuration.FunctionArn),
	}, nil
}
