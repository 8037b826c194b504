package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/knights-analytics/dualrun"
	"github.com/knights-analytics/dualrun/options"
	"github.com/knights-analytics/dualrun/signature"
	"github.com/knights-analytics/dualrun/tensors"
	"github.com/knights-analytics/dualrun/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var modelPath string
var inputPath string
var outputPath string
var backendName string
var format string
var sharedLibraryPath string
var diagnostics bool
var trace bool
var verbose bool

const (
	formatJSONL = "jsonl"
	formatCBOR  = "cbor"
)

// record is one line of an input or output file.
type record struct {
	Inputs  map[string]tensors.Value `json:"inputs,omitempty" cbor:"inputs,omitempty"`
	Outputs map[string]tensors.Value `json:"outputs,omitempty" cbor:"outputs,omitempty"`
}

var modelFlag = &cli.StringFlag{
	Name:        "model",
	Usage:       "Path to the model folder or .onnx file (local or s3://)",
	Aliases:     []string{"p"},
	Destination: &modelPath,
	Required:    true,
}

var backendFlag = &cli.StringFlag{
	Name:        "backend",
	Usage:       "Backend to run: GO, ORT, or ALL to run ORT and GO side by side",
	Aliases:     []string{"b"},
	Destination: &backendName,
	Value:       options.BackendGo,
}

var sharedLibraryFlag = &cli.StringFlag{
	Name:        "onnxruntimeSharedLibrary",
	Usage:       "Path to onnxruntime.so",
	Aliases:     []string{"s"},
	Destination: &sharedLibraryPath,
}

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "Print the input and output signature of a model as JSON",
	Flags: []cli.Flag{modelFlag, backendFlag, sharedLibraryFlag},
	Action: func(ctx *cli.Context) (err error) {
		session, err := newSession()
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, session.Destroy())
		}()
		sig, err := session.LoadModel(ctx.Context, modelPath)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(signatureJSON(sig), "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(ctx.App.Writer, string(out))
		return err
	},
}

type portJSON struct {
	Name  string  `json:"name"`
	DType string  `json:"dtype"`
	Shape []int64 `json:"shape"`
}

func signatureJSON(sig signature.ModelSignature) map[string][]portJSON {
	convert := func(ports []signature.ModelPort) []portJSON {
		out := make([]portJSON, len(ports))
		for i, p := range ports {
			out[i] = portJSON{Name: p.Name, DType: p.Tensor.Spec.DType.String(), Shape: p.Tensor.Spec.Shape}
		}
		return out
	}
	return map[string][]portJSON{"inputs": convert(sig.Inputs), "outputs": convert(sig.Outputs)}
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run a model on recorded input tensors",
	Description: `Run expects a path to a file with one record per line (jsonl) or a cbor sequence. Each record must be of the format
				{"inputs": {"<port name>": {"dtype": "float32", "shape": [1, 3], "data": [...]}}} and carry every model input.`,
	ArgsUsage: `
				--input: path to a record file or a folder with record files to process. If omitted, the input will be read from stdin.
				--output: path to a folder where to write the output. If omitted, the output will be sent to stdout.
				--backend: GO (default), ORT, or ALL to compare ORT and GO on every record.
				--onnxruntimeSharedLibrary: path to the onnxruntime.so library.
				`,
	Flags: []cli.Flag{
		modelFlag,
		backendFlag,
		sharedLibraryFlag,
		&cli.StringFlag{
			Name:        "input",
			Usage:       "Path to the input data",
			Aliases:     []string{"i"},
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Path to output",
			Aliases:     []string{"o"},
			Destination: &outputPath,
		},
		&cli.StringFlag{
			Name:        "format",
			Usage:       "Record format: jsonl or cbor",
			Aliases:     []string{"f"},
			Destination: &format,
			Value:       formatJSONL,
		},
		&cli.BoolFlag{
			Name:        "diagnostics",
			Usage:       "Verify every run against the prepared tensors",
			Destination: &diagnostics,
		},
		&cli.BoolFlag{
			Name:        "trace",
			Usage:       "Print OpenTelemetry spans to stderr",
			Destination: &trace,
		},
	},
	Action: func(ctx *cli.Context) (err error) {
		if format != formatJSONL && format != formatCBOR {
			return fmt.Errorf("format %s not implemented", format)
		}
		if trace {
			shutdown, traceErr := initTracer(ctx.App.ErrWriter)
			if traceErr != nil {
				return traceErr
			}
			defer func() {
				err = errors.Join(err, shutdown(context.Background()))
			}()
		}

		session, err := newSession()
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, session.Destroy())
		}()
		sig, err := session.LoadModel(ctx.Context, modelPath)
		if err != nil {
			return err
		}
		runner, err := newRunner(ctx.Context, session, sig)
		if err != nil {
			return err
		}

		inputChannel := make(chan record, 1000)
		processedChannel := make(chan []byte, 1000)
		errorsChannel := make(chan error, 1000)
		var processedWg, writeWg sync.WaitGroup

		processedWg.Add(1)
		go processRecords(&processedWg, inputChannel, processedChannel, errorsChannel, runner)

		var writer io.WriteCloser
		if outputPath != "" {
			writer, err = utils.NewFileWriter(ctx.Context, utils.PathJoinSafe(outputPath, fmt.Sprintf("result-0.%s", format)))
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, writer.Close())
			}()
		} else {
			writer = nopCloser{ctx.App.Writer}
		}
		writeWg.Add(1)
		go writeOutputs(&writeWg, processedChannel, errorsChannel, writer, ctx.App.ErrWriter)

		readErr := readAll(ctx.Context, inputChannel)
		close(inputChannel)
		processedWg.Wait()
		close(processedChannel)
		close(errorsChannel)
		writeWg.Wait()
		for _, line := range session.GetStats() {
			log.Info().Msg(line)
		}
		return readErr
	},
}

func newSession() (*dualrun.Session, error) {
	opts := []options.WithOption{options.WithLogger(log.Logger)}
	if diagnostics {
		opts = append(opts, options.WithDiagnostics())
	}
	backend := strings.ToUpper(backendName)
	if backend != options.BackendGo && sharedLibraryPath != "" {
		opts = append(opts, options.WithOnnxLibraryPath(sharedLibraryPath))
	}
	switch backend {
	case options.BackendGo:
		return dualrun.NewGoSession(opts...)
	case options.BackendORT:
		return dualrun.NewORTSession(opts...)
	case "ALL":
		return dualrun.NewComparisonSession(opts...)
	default:
		return nil, fmt.Errorf("backend %s not implemented", backendName)
	}
}

// readAll reads records from the input path, walking folders, or from stdin when it is not a terminal.
func readAll(ctx context.Context, inputChannel chan record) error {
	if inputPath == "" {
		if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			// there is something to process on stdin
			return readInputs(os.Stdin, inputChannel)
		}
		return nil
	}
	exists, err := utils.FileExists(inputPath)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("file %s does not exist", inputPath)
	}
	fileWalker := func(_ context.Context, _, _ string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() || strings.TrimPrefix(filepath.Ext(info.Name()), ".") != format {
			return true, nil
		}
		if readErr := readInputs(reader, inputChannel); readErr != nil {
			return false, fmt.Errorf("%s: %w", info.Name(), readErr)
		}
		return true, nil
	}
	return utils.Walk(ctx, inputPath, fileWalker)
}

func readInputs(inputSource io.Reader, inputChannel chan record) error {
	if format == formatCBOR {
		decoder := cbor.NewDecoder(inputSource)
		for {
			var line record
			if err := decoder.Decode(&line); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			inputChannel <- line
		}
	}
	scanner := bufio.NewScanner(inputSource)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var line record
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return err
		}
		inputChannel <- line
	}
	return scanner.Err()
}

// runner holds the tensors the session was prepared with. Every record is copied into them.
type runner struct {
	ctx     context.Context
	session *dualrun.Session
	inputs  []tensors.Named
	outputs []tensors.Named
}

func newRunner(ctx context.Context, session *dualrun.Session, sig signature.ModelSignature) (*runner, error) {
	inputs, err := signature.Allocate(sig.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := signature.Allocate(sig.Outputs)
	if err != nil {
		return nil, err
	}
	if err = session.PrepareModel(ctx, inputs, outputs); err != nil {
		return nil, err
	}
	return &runner{ctx: ctx, session: session, inputs: inputs, outputs: outputs}, nil
}

func (r *runner) run(in record) (record, error) {
	var missing []string
	for _, named := range r.inputs {
		value, ok := in.Inputs[named.Name]
		if !ok {
			missing = append(missing, named.Name)
			continue
		}
		t, err := value.Tensor()
		if err != nil {
			return record{}, fmt.Errorf("input %q: %w", named.Name, err)
		}
		if err = named.Tensor.CopyFrom(t); err != nil {
			return record{}, fmt.Errorf("input %q: %w", named.Name, err)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return record{}, fmt.Errorf("record is missing inputs %v", missing)
	}
	if err := r.session.RunModel(r.ctx, r.inputs, r.outputs); err != nil {
		return record{}, err
	}
	out := record{Outputs: make(map[string]tensors.Value, len(r.outputs))}
	for _, named := range r.outputs {
		out.Outputs[named.Name] = tensors.ToValue(named.Tensor)
	}
	return out, nil
}

func processRecords(wg *sync.WaitGroup, inputChannel chan record, processedChannel chan []byte, errorsChannel chan error, r *runner) {
	defer wg.Done()
	for in := range inputChannel {
		out, err := r.run(in)
		if err != nil {
			errorsChannel <- err
			continue
		}
		var outputBytes []byte
		if format == formatCBOR {
			outputBytes, err = cbor.Marshal(out)
		} else {
			outputBytes, err = json.Marshal(out)
			outputBytes = append(outputBytes, '\n')
		}
		if err != nil {
			errorsChannel <- err
			continue
		}
		processedChannel <- outputBytes
	}
}

func writeOutputs(wg *sync.WaitGroup, processedChannel chan []byte, errorChannel chan error, writeTarget io.Writer, errorTarget io.Writer) {
	defer wg.Done()
	for processedChannel != nil || errorChannel != nil {
		select {
		case output, ok := <-processedChannel:
			if !ok {
				processedChannel = nil
				continue
			}
			if _, err := writeTarget.Write(output); err != nil {
				log.Error().Err(err).Msg("writing output")
			}
		case err, ok := <-errorChannel:
			if !ok {
				errorChannel = nil
				continue
			}
			if _, writeErr := fmt.Fprintln(errorTarget, err.Error()); writeErr != nil {
				log.Error().Err(writeErr).Msg("writing error")
			}
		}
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// initTracer exports spans to w, kept apart from the results written to stdout.
func initTracer(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "dualrun"))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dualrun",
		Usage: "Inspect and run ONNX policy models on onnxruntime and pure Go",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "verbose",
				Usage:       "Log at debug level",
				Destination: &verbose,
			},
		},
		Before: func(*cli.Context) error {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return nil
		},
		Commands: []*cli.Command{inspectCommand, runCommand},
	}
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("dualrun failed")
	}
}
