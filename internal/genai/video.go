package genai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
)

// JobHandle identifies a long-running video generation operation.
type JobHandle string

// JobStatus is the result of one poll.
type JobStatus struct {
	Done      bool
	ResultURI string
}

// VideoOptions are the generation parameters sent with a job.
type VideoOptions struct {
	AspectRatio    string
	NegativePrompt string
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	AspectRatio    string `json:"aspectRatio,omitempty"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
}

type operation struct {
	Name     string    `json:"name"`
	Done     bool      `json:"done"`
	Error    *apiError `json:"error"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// SubmitVideoJob starts a models/{video_model}:predictLongRunning operation.
func (c *Client) SubmitVideoJob(ctx context.Context, prompt string, opts VideoOptions) (JobHandle, error) {
	reqBody := predictRequest{
		Instances: []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{
			AspectRatio:    opts.AspectRatio,
			NegativePrompt: opts.NegativePrompt,
		},
	}

	var lro operation
	url := fmt.Sprintf("%s/models/%s:predictLongRunning", c.cfg.BaseURL, c.cfg.VideoModel)
	if err := c.postJSON(ctx, url, reqBody, &lro); err != nil {
		return "", err
	}
	if lro.Name == "" {
		return "", core.Errorf(core.ErrGeneration, op, "video job submitted without an operation name")
	}

	c.logger.InfoContext(ctx, "video job submitted",
		slog.String("model", c.cfg.VideoModel),
		slog.String("operation", lro.Name),
	)
	return JobHandle(lro.Name), nil
}

// PollVideoJob reads the operation once. A finished operation that reports
// an error, or carries no video, fails with a generation error.
func (c *Client) PollVideoJob(ctx context.Context, job JobHandle) (JobStatus, error) {
	var lro operation
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s", c.cfg.BaseURL, job), &lro); err != nil {
		return JobStatus{}, err
	}
	if !lro.Done {
		return JobStatus{}, nil
	}
	if lro.Error != nil {
		return JobStatus{}, core.Errorf(core.ErrGeneration, op, "video job failed: %s", lro.Error.Message)
	}
	if lro.Response == nil || len(lro.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		return JobStatus{}, core.Errorf(core.ErrGeneration, op, "video job finished without samples")
	}
	return JobStatus{Done: true, ResultURI: lro.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI}, nil
}

// DownloadVideo fetches the finished video bytes.
func (c *Client) DownloadVideo(ctx context.Context, uri string) ([]byte, error) {
	resp, err := c.send(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, core.Errorf(core.ErrGeneration, op, "HTTP %d downloading video", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.Wrap(core.ErrGeneration, op, err, "reading video")
	}
	if len(data) == 0 {
		return nil, core.Errorf(core.ErrGeneration, op, "downloaded video is empty")
	}
	return data, nil
}
