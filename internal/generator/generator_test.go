package generator

import "testing"

func Test_Config_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ollama ok", Config{Backend: BackendOllama, Model: "llama3.2"}, false},
		{"ollama missing model", Config{Backend: BackendOllama}, true},
		{"openai ok", Config{Backend: BackendOpenAI, Model: "gpt-4o", APIKey: "sk-test"}, false},
		{"openai missing key", Config{Backend: BackendOpenAI, Model: "gpt-4o"}, true},
		{"openai missing model", Config{Backend: BackendOpenAI, APIKey: "sk-test"}, true},
		{"unknown backend", Config{Backend: "bedrock", Model: "x"}, true},
		{"empty backend", Config{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("want error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("want nil, got %v", err)
			}
		})
	}
}
