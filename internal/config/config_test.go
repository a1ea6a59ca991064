package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hamed0406/pushrelay/internal/classify"
	"github.com/hamed0406/pushrelay/internal/config"
	"github.com/hamed0406/pushrelay/internal/domain"
)

var _ = Describe("Config", func() {
	var tempDir string

	write := func(name, content string) string {
		p := filepath.Join(tempDir, name)
		Expect(os.WriteFile(p, []byte(content), 0o644)).To(Succeed())
		return p
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
	})

	Describe("Load", func() {
		Context("with a valid yaml file", func() {
			var cfg *config.Config

			BeforeEach(func() {
				path := write("relay.yaml", `
region: eu-west
classification: extended
server:
  listen_address: "0.0.0.0:9000"
  rate_limit_rpm: 120
  rate_limit_burst: 20
upstream:
  base_url: "https://kuma.example.com/base"
  request_headers:
    X-Token: secret
monitors:
  - id: web
    type: http
    target: "https://example.com/health"
    request_headers:
      Accept: application/json
  - id: router
    type: ICMP
    target: "10.0.0.1"
    push_url: "https://other.example.com/api/push/router"
`)
				var err error
				cfg, err = config.Load(path)
				Expect(err).NotTo(HaveOccurred())
			})

			It("parses the sections", func() {
				Expect(cfg.Region).To(Equal("eu-west"))
				Expect(cfg.Policy()).To(Equal(classify.PolicyExtended))
				Expect(cfg.Server.ListenAddress).To(Equal("0.0.0.0:9000"))
				Expect(cfg.Server.RateLimitRPM).To(Equal(120))
				Expect(cfg.Upstream.RequestHeaders).To(HaveKeyWithValue("x-token", "secret"))
			})

			It("keeps defaults for unset keys", func() {
				Expect(cfg.Log.Dir).To(Equal(config.DefaultLogDir))
				Expect(cfg.Log.Level).To(Equal("info"))
				Expect(cfg.ErrorReporting.SentrySampleRate).To(BeNumerically("==", 1.0))
			})

			It("builds targets with joined push destinations", func() {
				targets, err := cfg.Targets()
				Expect(err).NotTo(HaveOccurred())
				Expect(targets).To(HaveLen(2))

				Expect(targets[0].Kind).To(Equal(domain.KindHTTP))
				Expect(targets[0].PushURL).To(Equal("https://kuma.example.com/base/api/push/web"))
				Expect(targets[0].Headers).To(HaveKeyWithValue("accept", "application/json"))

				Expect(targets[1].Kind).To(Equal(domain.KindICMP))
				Expect(targets[1].PushURL).To(Equal("https://other.example.com/api/push/router"))
			})
		})

		Context("with a json file", func() {
			It("detects the format from the extension", func() {
				path := write("relay.json", `{"region":"us","monitors":[{"type":"ICMP","target":"1.1.1.1","push_url":"http://kuma:3001/api/push/a"}]}`)
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Region).To(Equal("us"))
				Expect(cfg.Monitors).To(HaveLen(1))
			})
		})

		Context("with a toml file", func() {
			It("detects the format from the extension", func() {
				path := write("relay.toml", `
classification = "basic"

[server]
listen_address = "127.0.0.1:8400"
`)
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.ListenAddress).To(Equal("127.0.0.1:8400"))
				Expect(cfg.Policy()).To(Equal(classify.PolicyBasic))
			})
		})

		Context("with environment variables", func() {
			It("overrides file values", func() {
				GinkgoT().Setenv("RELAY_SERVER_LISTEN_ADDRESS", "127.0.0.1:9999")
				GinkgoT().Setenv("RELAY_UPSTREAM_BASE_URL", "https://kuma.env.example.com")
				path := write("relay.yaml", "server:\n  listen_address: \"127.0.0.1:1\"\n")

				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.ListenAddress).To(Equal("127.0.0.1:9999"))
				Expect(cfg.Upstream.BaseURL).To(Equal("https://kuma.env.example.com"))
			})

			It("works without a file", func() {
				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.ListenAddress).To(Equal(config.DefaultListenAddress))
				Expect(cfg.Monitors).To(BeEmpty())
			})
		})

		Context("with invalid input", func() {
			DescribeTable("fails with ErrInvalid",
				func(content string) {
					path := write("relay.yaml", content)
					_, err := config.Load(path)
					Expect(err).To(MatchError(config.ErrInvalid))
				},
				Entry("unknown classification", "classification: strict\n"),
				Entry("bad listen address", "server:\n  listen_address: nope\n"),
				Entry("bad log level", "log:\n  level: loud\n"),
				Entry("relative upstream", "upstream:\n  base_url: kuma.local\n"),
				Entry("unknown monitor type", "monitors:\n  - {type: tcp, target: x, push_url: 'http://k/api/push/a'}\n"),
				Entry("http target without scheme", "monitors:\n  - {type: http, target: example.com, push_url: 'http://k/api/push/a'}\n"),
				Entry("no push destination", "monitors:\n  - {id: a, type: icmp, target: 10.0.0.1}\n"),
				Entry("missing cert file", "server:\n  tls:\n    certificate_file: /nonexistent.pem\n    private_key_file: /nonexistent.key\n"),
				Entry("negative rate limit", "server:\n  rate_limit_rpm: -1\n"),
			)

			It("reports every broken monitor", func() {
				path := write("relay.yaml", `
monitors:
  - {id: a, type: tcp, target: x, push_url: "http://k/api/push/a"}
  - {id: b, type: icmp, target: "http://bad", push_url: "http://k/api/push/b"}
`)
				_, err := config.Load(path)
				Expect(err).To(MatchError(config.ErrInvalid))
				Expect(err.Error()).To(ContainSubstring("monitors[0] (a)"))
				Expect(err.Error()).To(ContainSubstring("monitors[1] (b)"))
			})

			It("fails on a missing file", func() {
				_, err := config.Load(filepath.Join(tempDir, "absent.yaml"))
				Expect(err).To(MatchError(config.ErrInvalid))
			})
		})
	})

	Describe("TLSConfig", func() {
		It("returns nil when nothing is set", func() {
			c, err := config.TLSConfig{}.Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(c).To(BeNil())
		})

		It("honours skip_tls_verify", func() {
			c, err := config.TLSConfig{SkipTLSVerify: true}.Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(c.InsecureSkipVerify).To(BeTrue())
		})

		It("rejects a CA file without certificates", func() {
			path := write("ca.pem", "not a certificate")
			_, err := config.TLSConfig{CAFile: path}.Build()
			Expect(err).To(HaveOccurred())
		})
	})
})
