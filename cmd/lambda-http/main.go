package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"resume-critique/internal/bootstrap"
	"resume-critique/internal/shared/config"
	"resume-critique/internal/shared/telemetry"
)

var (
	initOnce  sync.Once
	initErr   error
	ginLambda *ginadapter.GinLambdaV2
)

func initApp() {
	cfg := config.Load()
	app, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	// The execution environment is frozen once a response is returned, so nothing may
	// keep running in the background.
	app.Intake.NoBackground = true
	ginLambda = ginadapter.NewV2(app.Router)
	telemetry.Info("lambda.http.ready", map[string]any{"queue": cfg.QueueBackend})
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": initErr.Error()})
		return errorResponse("bootstrap_failed", "service failed to start"), nil
	}
	return ginLambda.ProxyWithContext(ctx, req)
}

func errorResponse(code, message string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":{"code":"` + code + `","message":"` + message + `"}}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func main() {
	telemetry.Info("lambda.http.start", nil)
	lambda.Start(handler)
}
