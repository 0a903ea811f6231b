package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DART_KERNEL_LIB_NAME", "")
	t.Setenv("DART_THREAD_POOL_SIZE", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.KernelLibName != defaultKernelLibName {
		t.Fatalf("KernelLibName = %q, want %q", cfg.KernelLibName, defaultKernelLibName)
	}
	if cfg.ThreadPoolSize != defaultThreadPoolSize {
		t.Fatalf("ThreadPoolSize = %d, want %d", cfg.ThreadPoolSize, defaultThreadPoolSize)
	}
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	t.Setenv("DART_KERNEL_LIB_NAME", "Mindspore")
	t.Setenv("DART_THREAD_POOL_SIZE", "8")
	t.Setenv("DART_KERNEL_LIB_PATH", "/a/lib,/b/lib")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.KernelLibName != "Mindspore" {
		t.Fatalf("KernelLibName = %q, want Mindspore", cfg.KernelLibName)
	}
	if cfg.ThreadPoolSize != 8 {
		t.Fatalf("ThreadPoolSize = %d, want 8", cfg.ThreadPoolSize)
	}
	if len(cfg.KernelLibPath) != 2 || cfg.KernelLibPath[0] != "/a/lib" {
		t.Fatalf("KernelLibPath = %v, want [/a/lib /b/lib]", cfg.KernelLibPath)
	}
}

func TestLoadRejectsNonPositiveThreadPoolSize(t *testing.T) {
	t.Setenv("DART_THREAD_POOL_SIZE", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("Load with thread_pool_size=0: want error, got nil")
	}
}
